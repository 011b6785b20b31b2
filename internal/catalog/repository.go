package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gearbox-erp/gearbox-erp/internal/stock"
)

// Repository persists catalog records in Postgres. It doubles as the lookup
// port other modules declare for product, service and client data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCategories returns all categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	const query = `SELECT id, name FROM categories ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a category and returns its id.
func (r *Repository) CreateCategory(ctx context.Context, c Category) (int64, error) {
	const query = `INSERT INTO categories (name) VALUES ($1) RETURNING id`

	var id int64
	if err := r.pool.QueryRow(ctx, query, c.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("catalog: create category: %w", err)
	}
	return id, nil
}

// GetProduct returns one product.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	const query = `SELECT id, name, category_id, unit, min_stock, active FROM products WHERE id = $1`

	var p Product
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.CategoryID, &p.Unit, &p.MinStock, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	return p, nil
}

// ListProducts returns active products ordered by name.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	const query = `SELECT id, name, category_id, unit, min_stock, active FROM products WHERE active ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.CategoryID, &p.Unit, &p.MinStock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CreateProduct inserts a product and returns its id.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (int64, error) {
	const query = `
		INSERT INTO products (name, category_id, unit, min_stock, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query, p.Name, p.CategoryID, p.Unit, p.MinStock, p.Active).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: create product: %w", err)
	}
	return id, nil
}

// UpdateProduct overwrites a product's mutable fields.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) error {
	const query = `
		UPDATE products SET name = $2, category_id = $3, unit = $4, min_stock = $5, active = $6
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, p.ID, p.Name, p.CategoryID, p.Unit, p.MinStock, p.Active)
	if err != nil {
		return fmt.Errorf("catalog: update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ProductExists reports whether the product id is known.
func (r *Repository) ProductExists(ctx context.Context, productID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, productID).Scan(&exists); err != nil {
		return false, fmt.Errorf("catalog: product exists: %w", err)
	}
	return exists, nil
}

// MinStocks returns name and threshold for every active product.
func (r *Repository) MinStocks(ctx context.Context) (map[int64]stock.ProductInfo, error) {
	const query = `SELECT id, name, min_stock FROM products WHERE active`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: min stocks: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]stock.ProductInfo)
	for rows.Next() {
		var id int64
		var info stock.ProductInfo
		if err := rows.Scan(&id, &info.Name, &info.MinStock); err != nil {
			return nil, err
		}
		out[id] = info
	}
	return out, rows.Err()
}

// GetService returns one labor service.
func (r *Repository) GetService(ctx context.Context, id int64) (Service, error) {
	const query = `SELECT id, name, description, active FROM services WHERE id = $1`

	var s Service
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.Description, &s.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Service{}, ErrNotFound
		}
		return Service{}, fmt.Errorf("catalog: get service: %w", err)
	}
	return s, nil
}

// ListServices returns active services ordered by name.
func (r *Repository) ListServices(ctx context.Context) ([]Service, error) {
	const query = `SELECT id, name, description, active FROM services WHERE active ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var services []Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Active); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// CreateService inserts a labor service and returns its id.
func (r *Repository) CreateService(ctx context.Context, s Service) (int64, error) {
	const query = `INSERT INTO services (name, description, active) VALUES ($1, $2, $3) RETURNING id`

	var id int64
	if err := r.pool.QueryRow(ctx, query, s.Name, s.Description, s.Active).Scan(&id); err != nil {
		return 0, fmt.Errorf("catalog: create service: %w", err)
	}
	return id, nil
}

// GetClient returns one client.
func (r *Repository) GetClient(ctx context.Context, id int64) (Client, error) {
	const query = `SELECT id, name, tax_id, phone, email, company FROM clients WHERE id = $1`

	var c Client
	err := r.pool.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.TaxID, &c.Phone, &c.Email, &c.Company)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrNotFound
		}
		return Client{}, fmt.Errorf("catalog: get client: %w", err)
	}
	return c, nil
}

// ClientExists reports whether the client id is known.
func (r *Repository) ClientExists(ctx context.Context, clientID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, clientID).Scan(&exists); err != nil {
		return false, fmt.Errorf("catalog: client exists: %w", err)
	}
	return exists, nil
}

// CreateClient inserts a client and returns its id.
func (r *Repository) CreateClient(ctx context.Context, c Client) (int64, error) {
	const query = `
		INSERT INTO clients (name, tax_id, phone, email, company)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query, c.Name, c.TaxID, c.Phone, c.Email, c.Company).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: create client: %w", err)
	}
	return id, nil
}

// GetVehicle returns one vehicle.
func (r *Repository) GetVehicle(ctx context.Context, id int64) (Vehicle, error) {
	const query = `SELECT id, client_id, plate, brand, model, year FROM vehicles WHERE id = $1`

	var v Vehicle
	err := r.pool.QueryRow(ctx, query, id).Scan(&v.ID, &v.ClientID, &v.Plate, &v.Brand, &v.Model, &v.Year)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vehicle{}, ErrNotFound
		}
		return Vehicle{}, fmt.Errorf("catalog: get vehicle: %w", err)
	}
	return v, nil
}

// CreateVehicle inserts a vehicle, mapping the unique-plate violation to
// ErrDuplicatePlate.
func (r *Repository) CreateVehicle(ctx context.Context, v Vehicle) (int64, error) {
	const query = `
		INSERT INTO vehicles (client_id, plate, brand, model, year)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query, v.ClientID, v.Plate, v.Brand, v.Model, v.Year).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicatePlate
		}
		return 0, fmt.Errorf("catalog: create vehicle: %w", err)
	}
	return id, nil
}

// ListVehiclesByClient returns a client's vehicles.
func (r *Repository) ListVehiclesByClient(ctx context.Context, clientID int64) ([]Vehicle, error) {
	const query = `SELECT id, client_id, plate, brand, model, year FROM vehicles WHERE client_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []Vehicle
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.ClientID, &v.Plate, &v.Brand, &v.Model, &v.Year); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// EntityCounts tallies the master-data tables in one round trip.
func (r *Repository) EntityCounts(ctx context.Context) (EntityCounts, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM clients WHERE NOT company),
			(SELECT COUNT(*) FROM clients WHERE company),
			(SELECT COUNT(*) FROM vehicles),
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM services)`

	var c EntityCounts
	err := r.pool.QueryRow(ctx, query).Scan(&c.Clients, &c.Companies, &c.Vehicles, &c.Products, &c.Services)
	if err != nil {
		return EntityCounts{}, fmt.Errorf("catalog: entity counts: %w", err)
	}
	return c, nil
}
