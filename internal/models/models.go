package models

import "time"

type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Role         string     `db:"role" json:"role"`
	Status       string     `db:"status" json:"status"`
	FullName     *string    `db:"full_name" json:"fullName"`
	PasswordHash string     `db:"password_hash" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
}

type Post struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Type      string    `db:"type" json:"type"`
	Status    string    `db:"status" json:"status"`
	AuthorID  *string   `db:"author_id" json:"authorId"`
	ViewCount int       `db:"view_count" json:"viewCount"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type Broker struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	EstablishedIn *int      `db:"established_in" json:"establishedIn"`
	Headquarter   *string   `db:"headquarter" json:"headquarter"`
	Description   *string   `db:"description" json:"description"`
	IsVisible     bool      `db:"is_visible" json:"isVisible"`
	CreatedBy     *string   `db:"created_by" json:"createdBy"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

type Product struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description"`
	Price       float64   `db:"price" json:"price"`
	Category    string    `db:"category" json:"category"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

type Banner struct {
	ID        string     `db:"id" json:"id"`
	Title     string     `db:"title" json:"title"`
	LinkURL   *string    `db:"link_url" json:"linkUrl"`
	Position  int        `db:"position" json:"position"`
	IsActive  bool       `db:"is_active" json:"isActive"`
	StartsAt  *time.Time `db:"starts_at" json:"startsAt"`
	EndsAt    *time.Time `db:"ends_at" json:"endsAt"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// Image is a blob in object storage owned by a row of another table.
type Image struct {
	ID          string    `db:"id" json:"id"`
	TableName   string    `db:"table_name" json:"tableName"`
	RecordID    string    `db:"record_id" json:"recordId"`
	Type        string    `db:"type" json:"type"`
	Path        string    `db:"path" json:"path"`
	Alt         *string   `db:"alt" json:"alt"`
	ContentType string    `db:"content_type" json:"contentType"`
	SizeBytes   int64     `db:"size_bytes" json:"sizeBytes"`
	SHA256      string    `db:"sha256" json:"sha256"`
	URL         string    `db:"-" json:"url"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

type ServerMetricSample struct {
	ID                string    `db:"id"`
	CapturedAt        time.Time `db:"captured_at"`
	HeapUsedBytes     int64     `db:"heap_used_bytes"`
	HeapMaxBytes      int64     `db:"heap_max_bytes"`
	SystemMemoryTotal int64     `db:"system_memory_total_bytes"`
	SystemMemoryUsed  int64     `db:"system_memory_used_bytes"`
	DiskTotalBytes    int64     `db:"disk_total_bytes"`
	DiskUsedBytes     int64     `db:"disk_used_bytes"`
	ProcessCpuLoad    float64   `db:"process_cpu_load"`
	SystemCpuLoad     float64   `db:"system_cpu_load"`
}
