package model

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
	RoleTeamLead = "teamlead"
)

// User is the profile owned by the identity service. Only IsActive is written here.
type User struct {
	UserID     string `bson:"_id" json:"user_id"`
	Name       string `bson:"name" json:"name"`
	EmployeeID string `bson:"employee_id" json:"employee_id"`
	Role       string `bson:"role" json:"role"`
	IsActive   bool   `bson:"is_active" json:"is_active"`
}
