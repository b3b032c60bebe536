package bridge

// Kind is the ABI kind of one argument.
type Kind uint8

const (
	// KindString is a NUL-terminated UTF-8 string (const char*).
	KindString Kind = iota
	// KindInt is a C int passed by value.
	KindInt
	// KindCallback is a native function pointer to a state change handler.
	KindCallback
	// KindPointer is a native-owned pointer handed back to the engine.
	KindPointer
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindCallback:
		return "callback"
	case KindPointer:
		return "pointer"
	default:
		return "unknown"
	}
}

// Shape is the layout of the value a native entry point returns.
type Shape uint8

const (
	// ShapeNone returns nothing.
	ShapeNone Shape = iota
	// ShapeError returns a single nullable string pointer holding an error.
	ShapeError
	// ShapeData returns struct { char* data; char* error; }.
	ShapeData
	// ShapeMultipleData returns struct { char* data; char* other_data; char* error; }.
	ShapeMultipleData
)

// Fields returns the number of string fields the shape decodes to.
func (s Shape) Fields() int {
	switch s {
	case ShapeError:
		return 1
	case ShapeData:
		return 2
	case ShapeMultipleData:
		return 3
	default:
		return 0
	}
}

func (s Shape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeError:
		return "error"
	case ShapeData:
		return "data"
	case ShapeMultipleData:
		return "multiple-data"
	default:
		return "unknown"
	}
}

// Operation describes one exported native function.
type Operation struct {
	Name   string
	Symbol string
	Args   []Kind
	Shape  Shape
}

// Operation names.
const (
	OpGetOrganizationsList     = "fetch-organizations-list"
	OpGetServersList           = "fetch-servers-list"
	OpGetConfigSecureInternet  = "get-config-secure-internet"
	OpGetConfigInstituteAccess = "get-config-institute-access"
	OpGetConfigCustomServer    = "get-config-custom-server"
	OpRegister                 = "register"
	OpDeregister               = "deregister"
	OpCancelOAuth              = "cancel-oauth"
	OpSetProfileID             = "set-profile-id"
	OpSetSecureLocation        = "set-secure-location"
	OpSetConnected             = "set-connected"
	OpSetDisconnected          = "set-disconnected"
	OpGetIdentifier            = "get-identifier"
	OpSetIdentifier            = "set-identifier"
	OpSetSearchServer          = "set-search-server"
	OpFreeString               = "free-string"
)

var (
	argsSession       = []Kind{KindString}
	argsSessionValue  = []Kind{KindString, KindString}
	argsGetConfig     = []Kind{KindString, KindString, KindInt}
	argsRegister      = []Kind{KindString, KindString, KindCallback, KindInt}
	argsNativePointer = []Kind{KindPointer}
)

// Operations is the signature table of the native engine. Argument order is
// part of the ABI.
var Operations = []Operation{
	{OpGetOrganizationsList, "GetOrganizationsList", argsSession, ShapeData},
	{OpGetServersList, "GetServersList", argsSession, ShapeData},
	{OpGetConfigSecureInternet, "GetConfigSecureInternet", argsGetConfig, ShapeMultipleData},
	{OpGetConfigInstituteAccess, "GetConfigInstituteAccess", argsGetConfig, ShapeMultipleData},
	{OpGetConfigCustomServer, "GetConfigCustomServer", argsGetConfig, ShapeMultipleData},
	{OpRegister, "Register", argsRegister, ShapeError},
	{OpDeregister, "Deregister", argsSession, ShapeError},
	{OpCancelOAuth, "CancelOAuth", argsSession, ShapeError},
	{OpSetProfileID, "SetProfileID", argsSessionValue, ShapeError},
	{OpSetSecureLocation, "SetSecureLocation", argsSessionValue, ShapeError},
	{OpSetConnected, "SetConnected", argsSession, ShapeError},
	{OpSetDisconnected, "SetDisconnected", argsSession, ShapeError},
	{OpGetIdentifier, "GetIdentifier", argsSession, ShapeData},
	{OpSetIdentifier, "SetIdentifier", argsSessionValue, ShapeError},
	{OpSetSearchServer, "SetSearchServer", argsSession, ShapeError},
	{OpFreeString, "FreeString", argsNativePointer, ShapeNone},
}

var operationsByName = func() map[string]Operation {
	m := make(map[string]Operation, len(Operations))
	for _, op := range Operations {
		m[op.Name] = op
	}
	return m
}()

// Lookup returns the descriptor for the named operation.
func Lookup(name string) (Operation, bool) {
	op, ok := operationsByName[name]
	return op, ok
}

// Arity returns the number of arguments the operation takes.
func (op Operation) Arity() int {
	return len(op.Args)
}
