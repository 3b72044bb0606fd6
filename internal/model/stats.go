package model

// AdminStats aggregates user and revenue counts for the admin console.
type AdminStats struct {
	TotalUsers    int     `json:"total_users"`
	BasicUsers    int     `json:"basic_users"`
	DevUsers      int     `json:"dev_users"`
	TotalPayments int     `json:"total_payments"`
	TotalRevenue  float64 `json:"total_revenue"`
}
