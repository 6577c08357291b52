package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/marines/lib/marine"
)

// --------------------------------------------------------------------------
// Request Structure
// --------------------------------------------------------------------------

// Request is the payload of one request frame. Every request carries the
// credentials of the caller, there is no session.
type Request struct {
	Kind     RequestKind `json:"kind"`
	User     string      `json:"user"`
	PassHash string      `json:"passHash"`
	// Command is only set for RequestNormal
	Command *Command `json:"command,omitempty"`
}

// Command is a tagged union over all commands. Which fields are used depends
// on the type of the command.
type Command struct {
	Type CommandType `json:"type"`

	Key      int64           `json:"key,omitempty"`      // Used for: Insert, RemoveKey, ReplaceIfLower, RemoveLowerKey
	ID       int64           `json:"id,omitempty"`       // Used for: Update
	Marine   *marine.Marine  `json:"marine,omitempty"`   // Used for: Insert, Update, ReplaceIfLower, RemoveLower
	Category marine.Category `json:"category,omitempty"` // Used for: FilterGreaterThanCategory
}

// Validate checks that the request is well formed. A malformed request is a
// protocol error, the record itself is validated by the server.
func (r *Request) Validate() error {
	switch r.Kind {
	case RequestRegister, RequestAuthCheck:
		return nil
	case RequestNormal:
		if r.Command == nil {
			return errors.New("normal request without command")
		}
		return r.Command.Validate()
	default:
		return fmt.Errorf("unknown request kind %d", r.Kind)
	}
}

// Validate checks that the fields required by the command type are present
func (c *Command) Validate() error {
	if c.Type <= CmdUnknown || int(c.Type) >= len(commandNames) {
		return fmt.Errorf("unknown command type %d", c.Type)
	}
	if c.Type.NeedsMarine() && c.Marine == nil {
		return fmt.Errorf("command %s requires a marine", c.Type)
	}
	return nil
}

// --------------------------------------------------------------------------
// Request Factory Functions
// --------------------------------------------------------------------------

// NewRegisterRequest creates a request that registers a new user
func NewRegisterRequest(user, passHash string) *Request {
	return &Request{Kind: RequestRegister, User: user, PassHash: passHash}
}

// NewAuthCheckRequest creates a request that only checks the credentials
func NewAuthCheckRequest(user, passHash string) *Request {
	return &Request{Kind: RequestAuthCheck, User: user, PassHash: passHash}
}

// NewNormalRequest creates a request that executes cmd as user
func NewNormalRequest(user, passHash string, cmd *Command) *Request {
	return &Request{Kind: RequestNormal, User: user, PassHash: passHash, Command: cmd}
}

// --------------------------------------------------------------------------
// Command Factory Functions
// --------------------------------------------------------------------------

// NewInfoCommand creates an Info command
func NewInfoCommand() *Command {
	return &Command{Type: CmdInfo}
}

// NewShowCommand creates a Show command
func NewShowCommand() *Command {
	return &Command{Type: CmdShow}
}

// NewInsertCommand creates an Insert command
func NewInsertCommand(key int64, m marine.Marine) *Command {
	return &Command{Type: CmdInsert, Key: key, Marine: &m}
}

// NewUpdateCommand creates an Update command
func NewUpdateCommand(id int64, m marine.Marine) *Command {
	return &Command{Type: CmdUpdate, ID: id, Marine: &m}
}

// NewRemoveKeyCommand creates a RemoveKey command
func NewRemoveKeyCommand(key int64) *Command {
	return &Command{Type: CmdRemoveKey, Key: key}
}

// NewClearCommand creates a Clear command
func NewClearCommand() *Command {
	return &Command{Type: CmdClear}
}

// NewRemoveLowerCommand creates a RemoveLower command
func NewRemoveLowerCommand(ref marine.Marine) *Command {
	return &Command{Type: CmdRemoveLower, Marine: &ref}
}

// NewReplaceIfLowerCommand creates a ReplaceIfLower command
func NewReplaceIfLowerCommand(key int64, m marine.Marine) *Command {
	return &Command{Type: CmdReplaceIfLower, Key: key, Marine: &m}
}

// NewRemoveLowerKeyCommand creates a RemoveLowerKey command
func NewRemoveLowerKeyCommand(key int64) *Command {
	return &Command{Type: CmdRemoveLowerKey, Key: key}
}

// NewGroupCountingByCreationDateCommand creates a GroupCountingByCreationDate command
func NewGroupCountingByCreationDateCommand() *Command {
	return &Command{Type: CmdGroupCountingByCreationDate}
}

// NewFilterGreaterThanCategoryCommand creates a FilterGreaterThanCategory command
func NewFilterGreaterThanCategoryCommand(c marine.Category) *Command {
	return &Command{Type: CmdFilterGreaterThanCategory, Category: c}
}

// NewPrintAscendingCommand creates a PrintAscending command
func NewPrintAscendingCommand() *Command {
	return &Command{Type: CmdPrintAscending}
}

// --------------------------------------------------------------------------
// Request Kind Definition
// --------------------------------------------------------------------------

// RequestKind distinguishes registration, credential checks and commands
type RequestKind uint8

const (
	RequestUnknown   RequestKind = iota
	RequestRegister              // Register a new user
	RequestAuthCheck             // Check credentials only
	RequestNormal                // Execute a command
)

func (k RequestKind) String() string {
	switch k {
	case RequestRegister:
		return "register"
	case RequestAuthCheck:
		return "authCheck"
	case RequestNormal:
		return "normal"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for RequestKind.
func (k RequestKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for RequestKind.
func (k *RequestKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "register":
		*k = RequestRegister
	case "authCheck":
		*k = RequestAuthCheck
	case "normal":
		*k = RequestNormal
	default:
		return fmt.Errorf("unknown request kind: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Command Type Definition
// --------------------------------------------------------------------------

// CommandType selects the store operation of a normal request
type CommandType uint8

const (
	CmdUnknown CommandType = iota
	CmdInfo
	CmdShow
	CmdInsert
	CmdUpdate
	CmdRemoveKey
	CmdClear
	CmdRemoveLower
	CmdReplaceIfLower
	CmdRemoveLowerKey
	CmdGroupCountingByCreationDate
	CmdFilterGreaterThanCategory
	CmdPrintAscending
)

var commandNames = []string{
	"unknown",
	"info",
	"show",
	"insert",
	"update",
	"remove_key",
	"clear",
	"remove_lower",
	"replace_if_lower",
	"remove_lower_key",
	"group_counting_by_creation_date",
	"filter_greater_than_category",
	"print_ascending",
}

// CommandTypes returns all valid command types
func CommandTypes() []CommandType {
	types := make([]CommandType, 0, len(commandNames)-1)
	for i := 1; i < len(commandNames); i++ {
		types = append(types, CommandType(i))
	}
	return types
}

// String returns the string representation of a CommandType.
func (t CommandType) String() string {
	if int(t) >= len(commandNames) {
		return "unknown"
	}
	return commandNames[t]
}

// NeedsMarine reports whether the command carries a record
func (t CommandType) NeedsMarine() bool {
	switch t {
	case CmdInsert, CmdUpdate, CmdReplaceIfLower, CmdRemoveLower:
		return true
	default:
		return false
	}
}

// MarshalJSON implements the json.Marshaller interface for CommandType.
func (t CommandType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for CommandType.
func (t *CommandType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for i := 1; i < len(commandNames); i++ {
		if commandNames[i] == s {
			*t = CommandType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown command type: %s", s)
}
