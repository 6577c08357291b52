package server

import (
	"bytes"
	"errors"
	"strconv"
	"time"

	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/lib/store"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/transport"
)

// Lines written by the dispatcher itself. Store failures use the messages of the store.
const (
	MsgRegistered       = "registered"
	MsgUsernameTaken    = "username taken"
	MsgMissingUserOrKey = "username and password hash required"
	MsgDatabaseError    = "database error"
	MsgInternalError    = "internal error"
	MsgInvalidMarine    = "invalid marine: "
)

func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Request, st store.IStore) transport.Response {
	common.RequestCounter(req.Kind.String()).Inc()

	switch req.Kind {
	case common.RequestRegister:
		return transport.Response{Ok: true, Body: register(req, st)}
	case common.RequestAuthCheck:
		return transport.Response{Ok: authenticate(req, st)}
	case common.RequestNormal:
		if !authenticate(req, st) {
			return transport.Response{Ok: false}
		}
		timer := common.CommandTimer(req.Command.Type.String())
		start := time.Now()
		var out output
		execute(req.Command, req.User, st, &out)
		timer.UpdateSince(start)
		return transport.Response{Ok: true, Body: out.Bytes()}
	default:
		// Request.Validate rejects unknown kinds before they get here
		return transport.Response{Ok: false}
	}
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func authenticate(req *common.Request, st store.IStore) bool {
	if st.CheckUser(req.User, req.PassHash) {
		return true
	}
	common.AuthFailures.Inc()
	Logger.Debugf("rejected credentials of user %q", req.User)
	return false
}

func register(req *common.Request, st store.IStore) []byte {
	var out output
	if req.User == "" || req.PassHash == "" {
		out.line(MsgMissingUserOrKey)
		return out.Bytes()
	}
	switch err := st.AddUser(req.User, req.PassHash); {
	case err == nil:
		Logger.Infof("registered user %q", req.User)
		out.line(MsgRegistered)
	case store.IsCode(err, store.RetCBadOperation):
		out.line(MsgUsernameTaken)
	default:
		out.storeError(err)
	}
	return out.Bytes()
}

// execute runs one command as caller and renders its result into out
func execute(cmd *common.Command, caller string, st store.IStore, out *output) {
	if cmd.Type.NeedsMarine() {
		if err := cmd.Marine.Validate(); err != nil {
			out.line(MsgInvalidMarine + err.Error())
			return
		}
	}

	switch cmd.Type {
	case common.CmdInfo:
		info := st.Info()
		out.line("type: " + info.Type)
		out.line("number of elements: " + strconv.Itoa(info.Count))
		if !info.Newest.IsZero() {
			out.line("newest marine created on " + info.Newest.Format(marine.DateLayout))
		}
	case common.CmdShow:
		out.marines(st.List())
	case common.CmdInsert:
		out.storeError(st.Insert(cmd.Key, *cmd.Marine, caller))
	case common.CmdUpdate:
		out.storeError(st.Update(cmd.ID, *cmd.Marine, caller))
	case common.CmdRemoveKey:
		out.storeError(st.RemoveKey(cmd.Key, caller))
	case common.CmdClear:
		out.storeError(st.Clear(caller))
	case common.CmdRemoveLower:
		n, err := st.RemoveLower(*cmd.Marine, caller)
		Logger.Debugf("remove_lower of %q removed %d marines", caller, n)
		out.storeError(err)
	case common.CmdReplaceIfLower:
		_, err := st.ReplaceIfLower(cmd.Key, *cmd.Marine, caller)
		out.storeError(err)
	case common.CmdRemoveLowerKey:
		n, err := st.RemoveLowerKey(cmd.Key, caller)
		Logger.Debugf("remove_lower_key of %q removed %d marines", caller, n)
		out.storeError(err)
	case common.CmdGroupCountingByCreationDate:
		for _, g := range st.GroupCountingByCreationDate() {
			out.line(g.Date.Format(marine.DateLayout) + ": " + strconv.Itoa(g.Count))
		}
	case common.CmdFilterGreaterThanCategory:
		out.marines(st.FilterGreaterThanCategory(cmd.Category))
	case common.CmdPrintAscending:
		out.marines(st.Ascending())
	}
}

// output collects the lines of one response body
type output struct {
	bytes.Buffer
}

func (o *output) line(s string) {
	o.WriteString(s)
	o.WriteByte('\n')
}

// marines renders every record followed by an empty line
func (o *output) marines(ms []marine.Marine) {
	for _, m := range ms {
		for _, l := range m.Lines() {
			o.line(l)
		}
		o.line("")
	}
}

// storeError renders a failed store call as a single line, nil renders nothing
func (o *output) storeError(err error) {
	if err == nil {
		return
	}
	var sErr *store.Error
	if errors.As(err, &sErr) {
		switch sErr.Code {
		case store.RetCBadOperation, store.RetCBadOwner:
			o.line(sErr.Msg)
			return
		case store.RetCDBError:
			Logger.Warningf("backend call failed: %v", err)
			o.line(MsgDatabaseError)
			return
		}
	}
	Logger.Errorf("unexpected store error: %v", err)
	o.line(MsgInternalError)
}
