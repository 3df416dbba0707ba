package slot

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// Type names a slot's logical content type.
type Type string

const (
	TypeAddress Type = "address"
	TypeUint    Type = "uint"
	TypeBool    Type = "bool"
)

// layoutSchema constrains every declared slot before it is compiled.
const layoutSchema = `
#Slot: {
	index: int & >=0
	type:  "address" | "uint" | "bool"
}
slot: [string]: #Slot
`

// DefaultLayoutSource declares the single owner slot of the simplest token.
const DefaultLayoutSource = `slot: owner: {index: 0, type: "address"}`

// Def is one requestable slot of a contract.
type Def struct {
	Name  string
	Index uint64
	Key   Key
	Type  Type
}

// Layout maps slot names to their definitions.
type Layout struct {
	defs map[string]Def
}

// LayoutError reports an invalid slot declaration.
type LayoutError struct {
	Slot    string
	Message string
	Pos     token.Pos
}

func (e *LayoutError) Error() string {
	prefix := ""
	if e.Pos.IsValid() {
		prefix = fmt.Sprintf("%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.Slot != "" {
		return fmt.Sprintf("%sslot %q: %s", prefix, e.Slot, e.Message)
	}
	return prefix + e.Message
}

// DefaultLayout returns the layout with only the owner address slot at index 0.
func DefaultLayout() *Layout {
	l, err := CompileLayout(DefaultLayoutSource)
	if err != nil {
		panic(fmt.Sprintf("default layout: %v", err))
	}
	return l
}

// CompileLayout compiles a layout from CUE source.
func CompileLayout(src string) (*Layout, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("layout.cue"))
	if err := v.Err(); err != nil {
		return nil, &LayoutError{Message: err.Error()}
	}
	return compileLayoutValue(ctx, v)
}

// LoadLayout loads every .cue file in dir as one CUE instance and compiles it.
func LoadLayout(dir string) (*Layout, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("layout directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("layout directory: not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LayoutError{Message: "no CUE instances loaded"}
	}
	if inst := instances[0]; inst.Err != nil {
		return nil, &LayoutError{Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(instances[0])
	if err := v.Err(); err != nil {
		return nil, &LayoutError{Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return compileLayoutValue(ctx, v)
}

func compileLayoutValue(ctx *cue.Context, v cue.Value) (*Layout, error) {
	schema := ctx.CompileString(layoutSchema, cue.Filename("schema.cue"))
	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &LayoutError{Message: err.Error(), Pos: v.Pos()}
	}

	slotsVal := unified.LookupPath(cue.ParsePath("slot"))
	if !slotsVal.Exists() {
		return nil, &LayoutError{Message: "no slots declared"}
	}

	iter, err := slotsVal.Fields()
	if err != nil {
		return nil, &LayoutError{Message: fmt.Sprintf("iterating slots: %v", err)}
	}

	l := &Layout{defs: make(map[string]Def)}
	byIndex := make(map[uint64]string)
	for iter.Next() {
		name := iter.Label()
		def, err := compileDef(name, iter.Value())
		if err != nil {
			return nil, err
		}
		if other, ok := byIndex[def.Index]; ok {
			return nil, &LayoutError{
				Slot:    name,
				Message: fmt.Sprintf("index %d already used by %q", def.Index, other),
				Pos:     iter.Value().Pos(),
			}
		}
		byIndex[def.Index] = name
		l.defs[name] = def
	}
	if len(l.defs) == 0 {
		return nil, &LayoutError{Message: "no slots declared"}
	}
	return l, nil
}

func compileDef(name string, v cue.Value) (Def, error) {
	index, err := v.LookupPath(cue.ParsePath("index")).Uint64()
	if err != nil {
		return Def{}, &LayoutError{Slot: name, Message: fmt.Sprintf("index: %v", err), Pos: v.Pos()}
	}
	typ, err := v.LookupPath(cue.ParsePath("type")).String()
	if err != nil {
		return Def{}, &LayoutError{Slot: name, Message: fmt.Sprintf("type: %v", err), Pos: v.Pos()}
	}
	return Def{Name: name, Index: index, Key: KeyAt(index), Type: Type(typ)}, nil
}

// Lookup returns the slot with the given name.
func (l *Layout) Lookup(name string) (Def, bool) {
	d, ok := l.defs[name]
	return d, ok
}

// ByKey returns the slot stored at key.
func (l *Layout) ByKey(key Key) (Def, bool) {
	for _, d := range l.defs {
		if d.Key == key {
			return d, true
		}
	}
	return Def{}, false
}

// Defs returns all slots ordered by index.
func (l *Layout) Defs() []Def {
	out := make([]Def, 0, len(l.defs))
	for _, d := range l.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Encode parses the text form of a slot's content and encodes it.
func (d Def) Encode(text string) (Value, error) {
	switch d.Type {
	case TypeAddress:
		a, err := ParseAddress(text)
		if err != nil {
			return Value{}, err
		}
		return AddressCodec{}.Encode(a), nil
	case TypeUint:
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("uint %q: %w", text, errors.Join(err, ErrMalformedSlotValue))
		}
		return UintCodec{}.Encode(n), nil
	case TypeBool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, fmt.Errorf("bool %q: %w", text, errors.Join(err, ErrMalformedSlotValue))
		}
		return BoolCodec{}.Encode(b), nil
	default:
		return Value{}, fmt.Errorf("slot %q: unknown type %q", d.Name, d.Type)
	}
}

// Format decodes a slot word into its text form.
func (d Def) Format(v Value) (string, error) {
	switch d.Type {
	case TypeAddress:
		a, err := AddressCodec{}.Decode(v)
		if err != nil {
			return "", err
		}
		return a.String(), nil
	case TypeUint:
		n, err := UintCodec{}.Decode(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(n, 10), nil
	case TypeBool:
		b, err := BoolCodec{}.Decode(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	default:
		return "", fmt.Errorf("slot %q: unknown type %q", d.Name, d.Type)
	}
}
