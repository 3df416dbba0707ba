package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reqsync/internal/request"
	"github.com/roach88/reqsync/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Database string
	Role     string
	Owner    string
	Set      map[string]string // genesis slot values by name
}

// InitResult describes a created layer.
type InitResult struct {
	Database string            `json:"database"`
	Role     string            `json:"role"`
	Seeded   map[string]string `json:"seeded,omitempty"`
}

func (r InitResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Initialized %s layer at %s", r.Role, r.Database)
	names := make([]string, 0, len(r.Seeded))
	for name := range r.Seeded {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s = %s", name, r.Seeded[name])
	}
	return b.String()
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a layer database",
		Long: `Create a SQLite layer database with the given role and optional genesis
slot values. Running init again with the same role only applies the
genesis values.

Examples:
  reqsync init --db root.db --role root --owner 0x1111111111111111111111111111111111111111
  reqsync init --db child.db --role child
  reqsync init --db root.db --role root --layout ./layout --set owner=0x11... --set supply=100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Role, "role", "", "layer role: root or child (required)")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "genesis value of the owner slot")
	cmd.Flags().StringToStringVar(&opts.Set, "set", nil, "genesis slot value as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func runInit(ctx context.Context, opts *InitOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	role, err := request.ParseRole(opts.Role)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --role", err)
	}
	layout, err := opts.LoadLayout()
	if err != nil {
		return err
	}

	genesis := make(map[string]string, len(opts.Set)+1)
	for name, value := range opts.Set {
		genesis[name] = value
	}
	if opts.Owner != "" {
		genesis["owner"] = opts.Owner
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.InitRole(ctx, role); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize layer", err)
	}

	result := InitResult{Database: opts.Database, Role: role.String()}
	for name, text := range genesis {
		def, ok := layout.Lookup(name)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown slot %q", name))
		}
		v, err := def.Encode(text)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid genesis value for %s", name), err)
		}
		if err := st.Seed(ctx, def.Key, v); err != nil {
			return WrapExitError(ExitCommandError, "failed to seed slot", err)
		}
		if result.Seeded == nil {
			result.Seeded = make(map[string]string)
		}
		result.Seeded[name], _ = def.Format(v)
	}

	opts.Logger().Info("layer initialized", "db", opts.Database, "role", role.String(), "seeded", len(result.Seeded))
	return opts.formatter(cmd).Success(result)
}
