package dto

// DashboardQuery carries a role-scoped dashboard request. Status selects a
// role-specific bucket; "all" (or empty) disables the status filter.
type DashboardQuery struct {
	Status string `query:"status" validate:"omitempty,max=32"`
	Search string `query:"search" validate:"omitempty,max=255"`
	Sort   string `query:"sort" validate:"omitempty,oneof=newest oldest title"`
	Page   int    `query:"page" validate:"omitempty,gte=1"`
}

// DashboardResponse aggregates counts and one page of matching assignments.
type DashboardResponse struct {
	Role                string               `json:"role"`
	Counts              map[string]int64     `json:"counts"`
	Items               []AssignmentResponse `json:"items"`
	Pagination          Pagination           `json:"pagination"`
	UnreadNotifications int64                `json:"unread_notifications"`
	Status              string               `json:"status"`
	Search              string               `json:"search"`
	Sort                string               `json:"sort"`
}
