package gateway

// API is the outbound half of the vendor gateway boundary. Every request
// call is asynchronous: a nil return means the request was accepted for
// transmission, and the outcome arrives later through the Handler on a
// gateway-owned thread. The requestID is the application's correlation
// key and is echoed back verbatim on the matching response.
type API interface {
	// SetHandler binds the callback surface. Must be called before
	// Connect; callbacks fired with no handler bound are discarded.
	SetHandler(h Handler)

	// Connect registers the front addresses and starts the transport.
	// Completion is signaled via Handler.OnFrontConnected.
	Connect(tradingFront, marketFront string) error

	Authenticate(brokerID, userID, appID, authCode string, requestID int) error
	Login(brokerID, userID, password string, requestID int) error
	ConfirmSettlement(brokerID, investorID string, requestID int) error

	SubmitOrder(req OrderRequest, key OrderKey, requestID int) error
	CancelOrder(key OrderKey, requestID int) error

	Subscribe(instruments []string) error
	Unsubscribe(instruments []string) error

	QueryAccount(requestID int) error
	QueryPositions(requestID int) error
	QueryTrades(instrumentID string, requestID int) error
	QueryOrders(instrumentID string, requestID int) error
	QuerySettlement(tradingDay string, requestID int) error

	// Release tears down the transport. No callbacks fire afterwards.
	Release()
}

// Handler is the inbound callback surface. Implementations are invoked
// on gateway-internal threads with no ordering guarantee across callback
// types, and must return quickly without blocking or panicking.
type Handler interface {
	OnFrontConnected()
	OnFrontDisconnected(reason int)

	OnRspAuthenticate(rsp RspInfo, requestID int)
	OnRspLogin(login LoginResponse, rsp RspInfo, requestID int)
	OnRspSettlementConfirm(rsp RspInfo, requestID int)

	OnRtnOrder(snapshot OrderSnapshot)
	OnRtnTrade(trade Trade)
	OnTick(tick Tick)
	OnRspSubscribe(instrumentID string, rsp RspInfo)
	OnRspUnsubscribe(instrumentID string, rsp RspInfo)

	OnRspQryAccount(account AccountInfo, rsp RspInfo, requestID int)
	OnRspQryPositions(positions []Position, rsp RspInfo, requestID int)
	OnRspQryTrades(trades []Trade, rsp RspInfo, requestID int)
	OnRspQryOrders(orders []OrderSnapshot, rsp RspInfo, requestID int)
	OnRspQrySettlement(content string, rsp RspInfo, requestID int)

	OnRspError(rsp RspInfo, requestID int)
}
