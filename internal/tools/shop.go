package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nugget/shopkeep/internal/imagesearch"
	"github.com/nugget/shopkeep/internal/store"
)

// Catalog is the product side of the store.
type Catalog interface {
	Search(ctx context.Context, params store.SearchParams) (*store.SearchResult, error)
	GetProduct(ctx context.Context, id int64) (*store.Product, error)
}

// Orders is the order side of the store.
type Orders interface {
	CreateOrder(ctx context.Context, customerID int64, lines []store.LineRequest) (*store.Order, error)
	UpdateOrder(ctx context.Context, orderID, customerID int64, lines []store.LineRequest) (*store.Order, error)
	CancelOrder(ctx context.Context, orderID, customerID int64) error
	GetOrder(ctx context.Context, orderID, customerID int64) (*store.Order, error)
	ListOrders(ctx context.Context, customerID int64) ([]store.OrderSummary, error)
}

// Customers is the account side of the store.
type Customers interface {
	RegisterCustomer(ctx context.Context, reg store.Registration) (*store.Customer, error)
	Login(ctx context.Context, email, password string) (*store.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*store.Customer, error)
	UpdateCustomer(ctx context.Context, id int64, upd store.CustomerUpdate) error
}

// ImageSearcher finds products that look like an image.
type ImageSearcher interface {
	Search(ctx context.Context, filename string, image io.Reader) ([]imagesearch.Product, error)
}

// UploadStore opens pictures a customer uploaded to a thread.
// *imagesearch.Uploads satisfies it.
type UploadStore interface {
	Open(threadID, id string) (io.ReadCloser, error)
}

// Deps are the collaborators of the shop tools. Images and Uploads may
// be nil when no image search service is configured.
type Deps struct {
	Catalog   Catalog
	Orders    Orders
	Customers Customers
	Images    ImageSearcher
	Uploads   UploadStore
	TopK      int
	Logger    *slog.Logger
}

// OrderResult is the result of create_order and update_order.
type OrderResult struct {
	Status      string            `json:"status"`
	Message     string            `json:"message"`
	OrderID     int64             `json:"order_id"`
	OrderStatus store.OrderStatus `json:"order_status"`
	TotalAmount float64           `json:"total_amount"`
	Products    []store.OrderLine `json:"products"`
	CustomerID  int64             `json:"customer_id"`
}

type shopTools struct {
	Deps
}

// RegisterShopTools registers all eleven shop tools on r.
func RegisterShopTools(r *Registry, d Deps) error {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.TopK <= 0 {
		d.TopK = store.DefaultSearchLimit
	}
	s := &shopTools{Deps: d}

	for _, t := range []*Tool{
		{
			Name:        SearchProducts,
			Description: "Tìm sản phẩm còn hàng theo tên, mô tả, danh mục hoặc khoảng giá.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":     map[string]any{"type": "string", "description": "Từ khóa tìm kiếm"},
					"category":  map[string]any{"type": "string", "description": "Danh mục sản phẩm"},
					"min_price": map[string]any{"type": "number", "description": "Giá thấp nhất"},
					"max_price": map[string]any{"type": "number", "description": "Giá cao nhất"},
				},
			},
			Handler: s.searchProducts,
		},
		{
			Name:        SearchProductsByImage,
			Description: "Tìm sản phẩm tương tự một ảnh khách hàng đã tải lên.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"image_id": map[string]any{"type": "string", "description": "Mã ảnh (image_id) khách hàng đã tải lên"},
				},
				"required": []string{"image_id"},
			},
			Handler: s.searchProductsByImage,
		},
		{
			Name:        CreateOrder,
			Description: "Đặt hàng cho khách hàng đang đăng nhập. Hệ thống sẽ xác minh sản phẩm và chờ khách xác nhận.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"product_name": map[string]any{"type": "string", "description": "Tên sản phẩm khách muốn mua"},
					"product_id":   map[string]any{"type": []string{"integer", "string"}, "description": "Mã sản phẩm nếu đã biết"},
					"quantity":     map[string]any{"type": []string{"integer", "string"}, "description": "Số lượng, mặc định 1"},
					"products":     linesSchema,
				},
			},
			Handler: s.createOrder,
		},
		{
			Name:        UpdateOrder,
			Description: "Thay đổi sản phẩm và số lượng của một đơn hàng chưa bị hủy.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"order_id": orderIDSchema,
					"products": linesSchema,
				},
				"required": []string{"order_id", "products"},
			},
			Handler: s.updateOrder,
		},
		{
			Name:        CancelOrder,
			Description: "Hủy một đơn hàng đang chờ xử lý và hoàn lại tồn kho.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"order_id": orderIDSchema,
				},
				"required": []string{"order_id"},
			},
			Handler: s.cancelOrder,
		},
		{
			Name:        CheckOrderStatus,
			Description: "Xem một đơn hàng, hoặc tất cả đơn hàng của khách nếu không có mã đơn.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"order_id": orderIDSchema,
				},
			},
			Handler: s.checkOrderStatus,
		},
		{
			Name:        RegisterCustomer,
			Description: "Đăng ký tài khoản khách hàng mới.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"username": map[string]any{"type": "string"},
					"password": map[string]any{"type": "string", "minLength": 1},
					"email":    map[string]any{"type": "string", "minLength": 3},
					"phone":    map[string]any{"type": "string", "minLength": 1},
					"address":  map[string]any{"type": "string"},
				},
				"required": []string{"username", "password", "email", "phone"},
			},
			Handler: s.registerCustomer,
		},
		{
			Name:        LoginCustomer,
			Description: "Đăng nhập bằng email và mật khẩu.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"email":    map[string]any{"type": "string"},
					"password": map[string]any{"type": "string"},
				},
				"required": []string{"email", "password"},
			},
			Handler: s.loginCustomer,
		},
		{
			Name:        UpdateCustomerInfo,
			Description: "Cập nhật họ tên, địa chỉ hoặc số điện thoại của khách hàng đang đăng nhập.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"full_name": map[string]any{"type": "string"},
					"address":   map[string]any{"type": "string"},
					"phone":     map[string]any{"type": "string"},
				},
			},
			Handler: s.updateCustomerInfo,
		},
		{
			Name:        GetCustomerInfo,
			Description: "Lấy họ tên, số điện thoại, địa chỉ và email của khách hàng đang đăng nhập.",
			Handler:     s.getCustomerInfo,
		},
		{
			Name:        Chitchat,
			Description: "Trò chuyện, chào hỏi, cảm ơn hoặc hỏi về cửa hàng và trợ lý.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string", "description": "Tin nhắn của khách"},
				},
			},
			Handler: s.chitchat,
		},
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func requireCustomer(ctx context.Context) (int64, error) {
	id, ok := CustomerIDFromContext(ctx)
	if !ok {
		return 0, newError(KindValidation, ErrLoginRequired,
			"Bạn cần đăng nhập hoặc đăng ký tài khoản trước khi thực hiện thao tác này.")
	}
	return id, nil
}

func requireOrderID(args map[string]any) (int64, error) {
	id, ok := IntArg(args, "order_id")
	if !ok || id <= 0 {
		return 0, newError(KindValidation, nil, "Mã đơn hàng không hợp lệ: %v", args["order_id"])
	}
	return id, nil
}

func (s *shopTools) searchProducts(ctx context.Context, args map[string]any) (any, error) {
	res, err := s.Catalog.Search(ctx, store.SearchParams{
		Query:    StringArg(args, "query"),
		Category: StringArg(args, "category"),
		MinPrice: floatArg(args, "min_price"),
		MaxPrice: floatArg(args, "max_price"),
		Limit:    s.TopK,
	})
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"status":   "success",
		"products": res.Products,
		"metadata": res.Metadata,
	}
	if len(res.Products) == 0 {
		out["message"] = "Không tìm thấy sản phẩm phù hợp."
	}
	return out, nil
}

func (s *shopTools) searchProductsByImage(ctx context.Context, args map[string]any) (any, error) {
	if s.Images == nil || s.Uploads == nil {
		return nil, newError(KindTransient, nil, "image search is not configured")
	}
	id := StringArg(args, "image_id")
	if err := imagesearch.ValidUploadID(id); err != nil {
		return nil, newError(KindValidation, err, "Mã ảnh không hợp lệ: %s", id)
	}

	f, err := s.Uploads.Open(ThreadIDFromContext(ctx), id)
	switch {
	case errors.Is(err, imagesearch.ErrUploadNotFound):
		return nil, newError(KindNotFound, err, "Không tìm thấy ảnh: %s", id)
	case errors.Is(err, imagesearch.ErrBadUploadID):
		return nil, newError(KindValidation, err, "Mã ảnh không hợp lệ: %s", id)
	case err != nil:
		return nil, err
	}
	defer f.Close()

	products, err := s.Images.Search(ctx, id, f)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"status":   "success",
		"message":  fmt.Sprintf("Tìm thấy %d sản phẩm", len(products)),
		"products": products,
	}, nil
}

func (s *shopTools) createOrder(ctx context.Context, args map[string]any) (any, error) {
	customerID, err := requireCustomer(ctx)
	if err != nil {
		return nil, err
	}
	lines := lineArgs(args)
	if len(lines) == 0 {
		return nil, newError(KindValidation, store.ErrInvalidLine, "Chưa có sản phẩm nào trong đơn hàng.")
	}

	order, err := s.Orders.CreateOrder(ctx, customerID, lines)
	if err != nil {
		return nil, err
	}
	return orderResult(order, fmt.Sprintf("Đơn hàng %d đã được tạo thành công.", order.ID)), nil
}

func (s *shopTools) updateOrder(ctx context.Context, args map[string]any) (any, error) {
	customerID, err := requireCustomer(ctx)
	if err != nil {
		return nil, err
	}
	orderID, err := requireOrderID(args)
	if err != nil {
		return nil, err
	}
	lines := lineArgs(args)
	if len(lines) == 0 {
		return nil, newError(KindValidation, store.ErrInvalidLine, "Chưa có sản phẩm nào để cập nhật.")
	}

	order, err := s.Orders.UpdateOrder(ctx, orderID, customerID, lines)
	if err != nil {
		return nil, err
	}
	return orderResult(order, fmt.Sprintf("Đơn hàng %d đã được cập nhật.", order.ID)), nil
}

func orderResult(o *store.Order, msg string) *OrderResult {
	return &OrderResult{
		Status:      "success",
		Message:     msg,
		OrderID:     o.ID,
		OrderStatus: o.Status,
		TotalAmount: o.Total(),
		Products:    o.Lines,
		CustomerID:  o.CustomerID,
	}
}

func (s *shopTools) cancelOrder(ctx context.Context, args map[string]any) (any, error) {
	customerID, err := requireCustomer(ctx)
	if err != nil {
		return nil, err
	}
	orderID, err := requireOrderID(args)
	if err != nil {
		return nil, err
	}
	if err := s.Orders.CancelOrder(ctx, orderID, customerID); err != nil {
		return nil, err
	}
	return map[string]any{
		"status":   "success",
		"message":  fmt.Sprintf("Đơn hàng %d đã được hủy.", orderID),
		"order_id": orderID,
	}, nil
}

type orderLineView struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

func (s *shopTools) checkOrderStatus(ctx context.Context, args map[string]any) (any, error) {
	customerID, err := requireCustomer(ctx)
	if err != nil {
		return nil, err
	}

	if _, given := args["order_id"]; !given {
		orders, err := s.Orders.ListOrders(ctx, customerID)
		if err != nil {
			return nil, err
		}
		out := map[string]any{"status": "success", "orders": orders}
		if len(orders) == 0 {
			out["message"] = "Bạn chưa có đơn hàng nào."
		}
		return out, nil
	}

	orderID, err := requireOrderID(args)
	if err != nil {
		return nil, err
	}
	order, err := s.Orders.GetOrder(ctx, orderID, customerID)
	if err != nil {
		return nil, err
	}

	views := make([]orderLineView, 0, len(order.Lines))
	for _, l := range order.Lines {
		views = append(views, orderLineView{
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Subtotal:    float64(l.Quantity) * l.UnitPrice,
		})
	}
	return map[string]any{
		"status":       "success",
		"order_id":     order.ID,
		"order_date":   order.Date,
		"order_status": order.Status,
		"products":     views,
		"total_amount": order.Total(),
	}, nil
}

func (s *shopTools) registerCustomer(ctx context.Context, args map[string]any) (any, error) {
	c, err := s.Customers.RegisterCustomer(ctx, store.Registration{
		Username: StringArg(args, "username"),
		Password: StringArg(args, "password"),
		Email:    StringArg(args, "email"),
		Phone:    StringArg(args, "phone"),
		Address:  StringArg(args, "address"),
	})
	if err != nil {
		return nil, err
	}
	BindCustomer(ctx, c.ID)
	return map[string]any{
		"status":      "success",
		"message":     "Đăng ký tài khoản thành công.",
		"customer_id": c.ID,
	}, nil
}

func (s *shopTools) loginCustomer(ctx context.Context, args map[string]any) (any, error) {
	c, err := s.Customers.Login(ctx, StringArg(args, "email"), StringArg(args, "password"))
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrBadCredentials) {
		// Unknown email and wrong password get the same answer.
		return nil, newError(KindValidation, err, "Email hoặc mật khẩu không đúng.")
	}
	if err != nil {
		return nil, err
	}
	BindCustomer(ctx, c.ID)
	return map[string]any{
		"status":      "success",
		"message":     fmt.Sprintf("Đăng nhập thành công. Xin chào %s!", c.Username),
		"customer_id": c.ID,
	}, nil
}

func (s *shopTools) updateCustomerInfo(ctx context.Context, args map[string]any) (any, error) {
	customerID, err := requireCustomer(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Customers.UpdateCustomer(ctx, customerID, store.CustomerUpdate{
		FullName: StringArg(args, "full_name"),
		Address:  StringArg(args, "address"),
		Phone:    StringArg(args, "phone"),
	}); err != nil {
		return nil, err
	}
	return map[string]any{
		"status":  "success",
		"message": "Thông tin khách hàng đã được cập nhật.",
	}, nil
}

func (s *shopTools) getCustomerInfo(ctx context.Context, _ map[string]any) (any, error) {
	customerID, err := requireCustomer(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.Customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":    c.Username,
		"phone":   c.Phone,
		"address": c.Address,
		"email":   c.Email,
	}, nil
}
