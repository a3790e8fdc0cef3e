package sdk

import (
	"context"
	"reflect"
)

// ImportPath is the path interpreted modules import the sdk from.
const ImportPath = "github.com/kingrea/focus/sdk"

// Symbols exposes the sdk to the yaegi interpreter. Keys follow yaegi's
// "importpath/pkgname" convention.
var Symbols = map[string]map[string]reflect.Value{}

func init() {
	Symbols[ImportPath+"/sdk"] = map[string]reflect.Value{
		// types
		"Action":           reflect.ValueOf((*Action)(nil)),
		"Control":          reflect.ValueOf((*Control)(nil)),
		"Env":              reflect.ValueOf((*Env)(nil)),
		"Invoker":          reflect.ValueOf((*Invoker)(nil)),
		"Module":           reflect.ValueOf((*Module)(nil)),
		"Persistence":      reflect.ValueOf((*Persistence)(nil)),
		"Platform":         reflect.ValueOf((*Platform)(nil)),
		"SecretStore":      reflect.ValueOf((*SecretStore)(nil)),
		"Setting":          reflect.ValueOf((*Setting)(nil)),
		"ValidationError":  reflect.ValueOf((*ValidationError)(nil)),
		"ValidationErrors": reflect.ValueOf((*ValidationErrors)(nil)),
		"Value":            reflect.ValueOf((*Value)(nil)),
		"ValueKind":        reflect.ValueOf((*ValueKind)(nil)),

		// constants
		"ControlDropdown":    reflect.ValueOf(ControlDropdown),
		"ControlMultiSelect": reflect.ValueOf(ControlMultiSelect),
		"ControlNumber":      reflect.ValueOf(ControlNumber),
		"ControlSecret":      reflect.ValueOf(ControlSecret),
		"ControlSlider":      reflect.ValueOf(ControlSlider),
		"ControlText":        reflect.ValueOf(ControlText),
		"ControlToggle":      reflect.ValueOf(ControlToggle),
		"KindBool":           reflect.ValueOf(KindBool),
		"KindChoices":        reflect.ValueOf(KindChoices),
		"KindInteger":        reflect.ValueOf(KindInteger),
		"KindNumber":         reflect.ValueOf(KindNumber),
		"KindString":         reflect.ValueOf(KindString),
		"PersistPreset":      reflect.ValueOf(PersistPreset),
		"PersistSecret":      reflect.ValueOf(PersistSecret),
		"PersistTransient":   reflect.ValueOf(PersistTransient),

		// functions
		"BoolValue":             reflect.ValueOf(BoolValue),
		"CheckSettings":         reflect.ValueOf(CheckSettings),
		"ChoicesValue":          reflect.ValueOf(ChoicesValue),
		"FindSetting":           reflect.ValueOf(FindSetting),
		"IntValue":              reflect.ValueOf(IntValue),
		"Invalid":               reflect.ValueOf(Invalid),
		"NewDropdownSetting":    reflect.ValueOf(NewDropdownSetting),
		"NewIntSetting":         reflect.ValueOf(NewIntSetting),
		"NewMultiSelectSetting": reflect.ValueOf(NewMultiSelectSetting),
		"NewNumberSetting":      reflect.ValueOf(NewNumberSetting),
		"NewSecretSetting":      reflect.ValueOf(NewSecretSetting),
		"NewSetting":            reflect.ValueOf(NewSetting),
		"NewTextSetting":        reflect.ValueOf(NewTextSetting),
		"NewToggleSetting":      reflect.ValueOf(NewToggleSetting),
		"NumberValue":           reflect.ValueOf(NumberValue),
		"ParseValue":            reflect.ValueOf(ParseValue),
		"StringValue":           reflect.ValueOf(StringValue),

		// interface wrappers
		"_Invoker":     reflect.ValueOf((*_sdk_Invoker)(nil)),
		"_Module":      reflect.ValueOf((*_sdk_Module)(nil)),
		"_SecretStore": reflect.ValueOf((*_sdk_SecretStore)(nil)),
	}
}

// _sdk_Module lets interpreted types satisfy Module.
type _sdk_Module struct {
	IValue    interface{}
	WActions  func() []Action
	WInit     func(env Env) error
	WSettings func() []*Setting
	WStart    func(ctx context.Context) error
	WStop     func(ctx context.Context) error
	WValidate func(ctx context.Context) error
}

func (W _sdk_Module) Actions() []Action                  { return W.WActions() }
func (W _sdk_Module) Init(env Env) error                 { return W.WInit(env) }
func (W _sdk_Module) Settings() []*Setting               { return W.WSettings() }
func (W _sdk_Module) Start(ctx context.Context) error    { return W.WStart(ctx) }
func (W _sdk_Module) Stop(ctx context.Context) error     { return W.WStop(ctx) }
func (W _sdk_Module) Validate(ctx context.Context) error { return W.WValidate(ctx) }

type _sdk_Invoker struct {
	IValue  interface{}
	WInvoke func(ctx context.Context, action string) error
}

func (W _sdk_Invoker) Invoke(ctx context.Context, action string) error {
	return W.WInvoke(ctx, action)
}

type _sdk_SecretStore struct {
	IValue  interface{}
	WDelete func(ctx context.Context, key string) error
	WGet    func(ctx context.Context, key string) (string, error)
	WSet    func(ctx context.Context, key, value string) error
}

func (W _sdk_SecretStore) Delete(ctx context.Context, key string) error { return W.WDelete(ctx, key) }
func (W _sdk_SecretStore) Get(ctx context.Context, key string) (string, error) {
	return W.WGet(ctx, key)
}
func (W _sdk_SecretStore) Set(ctx context.Context, key, value string) error {
	return W.WSet(ctx, key, value)
}
