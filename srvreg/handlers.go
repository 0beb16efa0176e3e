package srvreg

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fruitchain/engine"
	"fruitchain/ledger"
	"fruitchain/repository"
	"fruitchain/repository/models"
)

var defaultHeaders = map[string]string{"Content-Type": "application/json"}

func jsonResponse(statusCode int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return &Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    defaultHeaders,
			Body:       `{"error":"Failed to encode response"}`,
		}
	}
	return &Response{StatusCode: statusCode, Headers: defaultHeaders, Body: string(body)}
}

func errorBody(statusCode int, message string) *Response {
	return jsonResponse(statusCode, map[string]string{"error": message})
}

// session builds the engine session for the request, rejecting callers
// without an identity header
func (sr *ServiceRegistry) session(req *Request) (engine.Session, *Response) {
	identity := req.Identity()
	if identity == "" {
		return engine.Session{}, errorBody(http.StatusUnauthorized, "identity header is required")
	}
	if req.RequestID == "" {
		return engine.NewSession(identity), nil
	}
	return engine.Session{Identity: identity, RequestID: req.RequestID}, nil
}

// mapError translates engine and repository errors to HTTP responses
func (sr *ServiceRegistry) mapError(err error) *Response {
	var repoErr *repository.RepositoryError
	if errors.As(err, &repoErr) {
		switch repoErr.Code {
		case repository.ErrCodeEntityNotFound:
			return errorBody(http.StatusNotFound, repoErr.Message)
		case repository.ErrCodeInvalidState, repository.ErrCodeConflict,
			repository.PgErrUniqueViolation, repository.PgErrForeignKeyViolation:
			return errorBody(http.StatusConflict, repoErr.Message)
		default:
			return errorBody(http.StatusInternalServerError, "Internal server error")
		}
	}

	var ledgerErr *ledger.Error
	if errors.As(err, &ledgerErr) {
		switch ledgerErr.Code {
		case ledger.CodeEnvironmentViolation:
			return errorBody(http.StatusServiceUnavailable, ledgerErr.Error())
		case ledger.CodeReverted:
			return errorBody(http.StatusUnprocessableEntity, ledgerErr.Error())
		case ledger.CodeTimeout:
			return errorBody(http.StatusGatewayTimeout, ledgerErr.Error())
		case ledger.CodeInsufficientFunds:
			return errorBody(http.StatusPaymentRequired, ledgerErr.Error())
		default:
			return errorBody(http.StatusBadGateway, ledgerErr.Error())
		}
	}

	var divergence *engine.SyncDivergenceError
	if errors.As(err, &divergence) {
		// the on-chain effect stands, hand the caller everything a
		// repair needs
		return jsonResponse(http.StatusInternalServerError, map[string]any{
			"error":            "mirror diverged from ledger",
			"kind":             divergence.Kind,
			"target_id":        divergence.TargetID,
			"confirmation_ref": divergence.ConfirmationRef,
			"repair_hint":      "POST /sync-product",
		})
	}

	var transition *engine.InvalidTransitionError
	if errors.As(err, &transition) {
		return errorBody(http.StatusConflict, transition.Error())
	}
	var stock *engine.InsufficientStockError
	if errors.As(err, &stock) {
		return errorBody(http.StatusConflict, stock.Error())
	}
	var unavailable *engine.ListingUnavailableError
	if errors.As(err, &unavailable) {
		return errorBody(http.StatusGone, unavailable.Error())
	}

	sr.logger.Error("Unhandled engine error", "err", err)
	return errorBody(http.StatusInternalServerError, "Internal server error")
}

// Role

func (sr *ServiceRegistry) CheckRoleHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	role, err := sr.engine.CheckRole(context.Background(), sess.Identity)
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusOK, map[string]string{"address": sess.Identity, "role": role}), nil
}

type addManagerBody struct {
	Address string `json:"address"`
}

func (sr *ServiceRegistry) AddManagerHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body addManagerBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}
	if body.Address == "" {
		return errorBody(http.StatusBadRequest, "address is required"), nil
	}

	ref, err := sr.engine.AddManager(context.Background(), sess, body.Address)
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusCreated, map[string]string{"address": body.Address, "confirmation_ref": ref}), nil
}

// Farms

type registerFarmBody struct {
	FarmID     string `json:"farm_id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Climate    string `json:"climate"`
	Soil       string `json:"soil"`
	Conditions string `json:"conditions"`
}

func (sr *ServiceRegistry) RegisterFarmHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body registerFarmBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}
	if body.FarmID == "" {
		return errorBody(http.StatusBadRequest, "farm_id is required"), nil
	}

	farm := &models.Farm{
		ID:         body.FarmID,
		Name:       body.Name,
		Location:   body.Location,
		Climate:    body.Climate,
		Soil:       body.Soil,
		Conditions: body.Conditions,
	}
	if err := sr.engine.RegisterFarm(context.Background(), sess, farm); err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusCreated, farm), nil
}

func (sr *ServiceRegistry) ListUserFarmsHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	farms, repoErr := sr.repository.ListFarmsByOwner(sess.Identity)
	if repoErr != nil {
		return sr.mapError(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, farms), nil
}

func (sr *ServiceRegistry) GetFarmHandler(req *Request) (*Response, error) {
	if _, reject := sr.session(req); reject != nil {
		return reject, nil
	}

	farmID := req.PathPart(1)
	farm, repoErr := sr.repository.GetFarm(farmID)
	if repoErr != nil {
		return sr.mapError(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, farm), nil
}

func (sr *ServiceRegistry) DeleteFarmHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	farmID := req.PathPart(1)
	if repoErr := sr.repository.DeleteFarm(farmID, sess.Identity); repoErr != nil {
		return sr.mapError(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, map[string]string{"message": "Farm deleted", "farm_id": farmID}), nil
}

// Products and inventory

func (sr *ServiceRegistry) GetProductHandler(req *Request) (*Response, error) {
	if _, reject := sr.session(req); reject != nil {
		return reject, nil
	}

	product, repoErr := sr.repository.GetProduct(req.PathPart(1))
	if repoErr != nil {
		return sr.mapError(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, product), nil
}

func (sr *ServiceRegistry) GetInventoryHandler(req *Request) (*Response, error) {
	if _, reject := sr.session(req); reject != nil {
		return reject, nil
	}

	item, repoErr := sr.repository.GetInventoryItem(req.PathPart(2))
	if repoErr != nil {
		return sr.mapError(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, item), nil
}

type setFruitIDBody struct {
	FruitID uint64 `json:"fruit_id"`
}

func (sr *ServiceRegistry) SetFruitIDHandler(req *Request) (*Response, error) {
	if _, reject := sr.session(req); reject != nil {
		return reject, nil
	}

	var body setFruitIDBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}

	inventoryID := req.PathPart(1)
	if repoErr := sr.repository.SetInventoryFruitID(inventoryID, body.FruitID); repoErr != nil {
		return sr.mapError(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, map[string]any{"inventory_id": inventoryID, "fruit_id": body.FruitID}), nil
}

type addToInventoryBody struct {
	InventoryID string `json:"inventory_id"`
	ProductID   string `json:"product_id"`
	ShipmentID  string `json:"shipment_id"`
	Quantity    uint64 `json:"quantity"`
}

func (sr *ServiceRegistry) AddToInventoryHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body addToInventoryBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}
	if body.ProductID == "" {
		return errorBody(http.StatusBadRequest, "product_id is required"), nil
	}

	item, err := sr.engine.AddToInventory(context.Background(), sess, engine.AddToInventoryRequest{
		InventoryID: body.InventoryID,
		ProductID:   body.ProductID,
		ShipmentID:  body.ShipmentID,
		Quantity:    body.Quantity,
	})
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusCreated, item), nil
}

// Trading

type sellProductBody struct {
	InventoryID string `json:"inventory_id"`
	ShipmentID  string `json:"shipment_id"`
	FruitType   string `json:"fruit_type"`
	Origin      string `json:"origin"`
	FarmID      string `json:"farm_id"`
	Quality     string `json:"quality"`
	Price       uint64 `json:"price"`
	Quantity    uint64 `json:"quantity"`
}

func (sr *ServiceRegistry) SellProductHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body sellProductBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}
	if body.InventoryID == "" || body.FruitType == "" || body.FarmID == "" {
		return errorBody(http.StatusBadRequest, "inventory_id, fruit_type and farm_id are required"), nil
	}
	if body.Quantity == 0 {
		return errorBody(http.StatusBadRequest, "quantity must be positive"), nil
	}

	result, err := sr.engine.ListForSale(context.Background(), sess, engine.ListForSaleRequest{
		InventoryID: body.InventoryID,
		ShipmentID:  body.ShipmentID,
		FruitType:   body.FruitType,
		Origin:      body.Origin,
		FarmID:      body.FarmID,
		Quality:     body.Quality,
		Price:       body.Price,
		Quantity:    body.Quantity,
	})
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusCreated, result), nil
}

type buyProductBody struct {
	ListingID       uint64 `json:"listing_id"`
	Quantity        uint64 `json:"quantity"`
	CustomerName    string `json:"customer_name"`
	ShippingAddress string `json:"shipping_address"`
}

func (sr *ServiceRegistry) BuyProductHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body buyProductBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}
	if body.Quantity == 0 {
		return errorBody(http.StatusBadRequest, "quantity must be positive"), nil
	}

	result, err := sr.engine.Purchase(context.Background(), sess, engine.PurchaseRequest{
		ListingID:       body.ListingID,
		Quantity:        body.Quantity,
		CustomerName:    body.CustomerName,
		ShippingAddress: body.ShippingAddress,
	})
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusCreated, result), nil
}

type receiveShipmentBody struct {
	ShipmentID string `json:"shipment_id"`
}

func (sr *ServiceRegistry) ReceiveShipmentHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body receiveShipmentBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}
	if body.ShipmentID == "" {
		return errorBody(http.StatusBadRequest, "shipment_id is required"), nil
	}

	shipment, err := sr.engine.ReceiveShipment(context.Background(), sess, body.ShipmentID)
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusOK, shipment), nil
}

type shipToCustomerBody struct {
	OrderID string `json:"order_id"`
	Carrier string `json:"carrier"`
}

func (sr *ServiceRegistry) ShipToCustomerHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body shipToCustomerBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}
	if body.OrderID == "" {
		return errorBody(http.StatusBadRequest, "order_id is required"), nil
	}

	shipment, err := sr.engine.ShipToCustomer(context.Background(), sess, engine.ShipToCustomerRequest{
		OrderID: body.OrderID,
		Carrier: body.Carrier,
	})
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusOK, shipment), nil
}

type harvestBody struct {
	FruitType string `json:"fruit_type"`
	Origin    string `json:"origin"`
	FarmID    string `json:"farm_id"`
	Quality   string `json:"quality"`
	Quantity  uint64 `json:"quantity"`
}

func (sr *ServiceRegistry) HarvestHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body harvestBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}
	if body.FruitType == "" || body.FarmID == "" {
		return errorBody(http.StatusBadRequest, "fruit_type and farm_id are required"), nil
	}
	if body.Quantity == 0 {
		return errorBody(http.StatusBadRequest, "quantity must be positive"), nil
	}

	result, err := sr.engine.Harvest(context.Background(), sess, engine.HarvestRequest{
		FruitType: body.FruitType,
		Origin:    body.Origin,
		FarmID:    body.FarmID,
		Quality:   body.Quality,
		Quantity:  body.Quantity,
	})
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusCreated, result), nil
}

// Orders

func (sr *ServiceRegistry) GetOrderHandler(req *Request) (*Response, error) {
	if _, reject := sr.session(req); reject != nil {
		return reject, nil
	}

	order, repoErr := sr.repository.GetOrder(req.PathPart(1))
	if repoErr != nil {
		return sr.mapError(repoErr), repoErr
	}
	return jsonResponse(http.StatusOK, order), nil
}

func (sr *ServiceRegistry) CancelOrderHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	orderID := req.PathPart(1)
	if err := sr.engine.CancelOrder(context.Background(), sess, orderID); err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusOK, map[string]string{"order_id": orderID, "status": models.OrderCancelled}), nil
}

func (sr *ServiceRegistry) MarkDeliveredHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	orderID := req.PathPart(1)
	if err := sr.engine.MarkDelivered(context.Background(), sess, orderID); err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusOK, map[string]string{"order_id": orderID, "status": models.OrderDelivered}), nil
}

type syncProductBody struct {
	ListingID uint64 `json:"listing_id"`
}

func (sr *ServiceRegistry) SyncProductHandler(req *Request) (*Response, error) {
	sess, reject := sr.session(req)
	if reject != nil {
		return reject, nil
	}

	var body syncProductBody
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return errorBody(http.StatusUnprocessableEntity, "Invalid body format: "+err.Error()), err
	}

	listing, err := sr.engine.SyncProduct(context.Background(), sess, body.ListingID)
	if err != nil {
		return sr.mapError(err), err
	}
	return jsonResponse(http.StatusOK, listing), nil
}
