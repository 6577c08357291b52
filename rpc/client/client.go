package client

import (
	"github.com/ValentinKolb/marines/lib/marine"
	"github.com/ValentinKolb/marines/rpc/common"
	"github.com/ValentinKolb/marines/rpc/serializer"
	"github.com/ValentinKolb/marines/rpc/transport"
)

// NewRPCClient creates a new client and connects the transport
// The credentials are set with Login before the first command.
func NewRPCClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCClient, error) {

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RPCClient{
		rpcClientAdapter: rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// RPCClient sends requests on behalf of one user. Every method returns the
// response body, one line per entry. Domain failures (e.g. "key not found")
// are part of the body, rejected credentials yield ErrAuthFailed.
type RPCClient struct {
	rpcClientAdapter
	user     string
	passHash string
}

// Login sets the credentials sent with every request. No request is made,
// use Ping to check them.
func (c *RPCClient) Login(user, password string) {
	c.user = user
	c.passHash = HashPassword(password)
}

// User returns the name set by Login
func (c *RPCClient) User() string {
	return c.user
}

// Register creates a new user and logs in as that user
func (c *RPCClient) Register(user, password string) (string, error) {
	c.Login(user, password)
	return c.invoke(common.NewRegisterRequest(c.user, c.passHash))
}

// Ping checks the credentials. It returns ErrAuthFailed if they are wrong.
func (c *RPCClient) Ping() error {
	_, err := c.invoke(common.NewAuthCheckRequest(c.user, c.passHash))
	return err
}

// --------------------------------------------------------------------------
// Commands
// --------------------------------------------------------------------------

func (c *RPCClient) Info() (string, error) {
	return c.run(common.NewInfoCommand())
}

func (c *RPCClient) Show() (string, error) {
	return c.run(common.NewShowCommand())
}

func (c *RPCClient) Insert(key int64, m marine.Marine) (string, error) {
	return c.run(common.NewInsertCommand(key, m))
}

func (c *RPCClient) Update(id int64, m marine.Marine) (string, error) {
	return c.run(common.NewUpdateCommand(id, m))
}

func (c *RPCClient) RemoveKey(key int64) (string, error) {
	return c.run(common.NewRemoveKeyCommand(key))
}

func (c *RPCClient) Clear() (string, error) {
	return c.run(common.NewClearCommand())
}

func (c *RPCClient) RemoveLower(ref marine.Marine) (string, error) {
	return c.run(common.NewRemoveLowerCommand(ref))
}

func (c *RPCClient) ReplaceIfLower(key int64, m marine.Marine) (string, error) {
	return c.run(common.NewReplaceIfLowerCommand(key, m))
}

func (c *RPCClient) RemoveLowerKey(key int64) (string, error) {
	return c.run(common.NewRemoveLowerKeyCommand(key))
}

func (c *RPCClient) GroupCountingByCreationDate() (string, error) {
	return c.run(common.NewGroupCountingByCreationDateCommand())
}

func (c *RPCClient) FilterGreaterThanCategory(category marine.Category) (string, error) {
	return c.run(common.NewFilterGreaterThanCategoryCommand(category))
}

func (c *RPCClient) PrintAscending() (string, error) {
	return c.run(common.NewPrintAscendingCommand())
}

// Close closes the transport
func (c *RPCClient) Close() error {
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *RPCClient) run(cmd *common.Command) (string, error) {
	return c.invoke(common.NewNormalRequest(c.user, c.passHash, cmd))
}

func (c *RPCClient) invoke(req *common.Request) (string, error) {
	body, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		Logger.Debugf("%s request failed: %v", req.Kind, err)
	}
	return body, err
}
