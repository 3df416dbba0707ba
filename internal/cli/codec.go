package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/ledger"
	"github.com/roach88/reqsync/internal/slot"
)

// CodecOptions holds flags for the encode and decode commands.
type CodecOptions struct {
	*RootOptions
	Type string
	Slot string
}

// CodecResult pairs a slot's text form with its storage word.
type CodecResult struct {
	Type  string `json:"type"`
	Slot  string `json:"slot,omitempty"`
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
	Word  string `json:"word"`
}

func (r CodecResult) String() string {
	if r.Slot != "" {
		return fmt.Sprintf("%s (%s) %s = %s", r.Slot, r.Key, r.Value, r.Word)
	}
	return fmt.Sprintf("%s = %s", r.Value, r.Word)
}

func addCodecFlags(cmd *cobra.Command, opts *CodecOptions) {
	cmd.Flags().StringVar(&opts.Type, "type", string(slot.TypeAddress), "value type: address, uint or bool")
	cmd.Flags().StringVar(&opts.Slot, "slot", "", "take the type from this layout slot")
}

// def resolves the slot definition named by --slot, or an anonymous one of --type.
func (o *CodecOptions) def() (slot.Def, error) {
	if o.Slot == "" {
		switch t := slot.Type(o.Type); t {
		case slot.TypeAddress, slot.TypeUint, slot.TypeBool:
			return slot.Def{Name: "value", Type: t}, nil
		default:
			return slot.Def{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid --type %q", o.Type))
		}
	}
	layout, err := o.LoadLayout()
	if err != nil {
		return slot.Def{}, err
	}
	def, ok := layout.Lookup(o.Slot)
	if !ok {
		return slot.Def{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown slot %q", o.Slot))
	}
	return def, nil
}

func (o *CodecOptions) result(def slot.Def, text string, word slot.Value) CodecResult {
	r := CodecResult{Type: string(def.Type), Value: text, Word: word.String()}
	if o.Slot != "" {
		r.Slot = def.Name
		r.Key = def.Key.String()
	}
	return r
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "encode <value>",
		Short: "Encode a value into a 32-byte storage word",
		Long: `Encode an address, unsigned integer or boolean into the storage word a slot
holds. Addresses and integers are right-aligned.

Example:
  reqsync encode 0x1111111111111111111111111111111111111111
  reqsync encode --type uint 100`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := opts.def()
			if err != nil {
				return err
			}
			word, err := def.Encode(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode value", err)
			}
			text, _ := def.Format(word)
			return opts.formatter(cmd).Success(opts.result(def, text, word))
		},
	}
	addCodecFlags(cmd, opts)

	return cmd
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decode <word>",
		Short: "Decode a 32-byte storage word",
		Long: `Decode a storage word as an address, unsigned integer or boolean.
A word that does not hold a value of the type fails with MALFORMED_SLOT_VALUE.

Example:
  reqsync decode 0x0000000000000000000000001111111111111111111111111111111111111111
  reqsync decode --type bool 0x01`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := opts.def()
			if err != nil {
				return err
			}
			word, err := slot.ParseValue(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid word", err)
			}
			text, err := def.Format(word)
			if err != nil {
				f := opts.formatter(cmd)
				if writeErr := f.Error(string(ledger.CodeMalformedSlotValue), err.Error(), map[string]string{"word": word.String(), "type": string(def.Type)}); writeErr != nil {
					return writeErr
				}
				return &ExitError{Code: ExitFailure, Message: "malformed slot value", Err: err, Reported: true}
			}
			return opts.formatter(cmd).Success(opts.result(def, text, word))
		},
	}
	addCodecFlags(cmd, opts)

	return cmd
}
