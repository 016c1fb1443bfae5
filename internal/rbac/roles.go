package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleAdmin manages templates, contacts and tokens.
	RoleAdmin = "admin"
	// RoleDispatcher starts, cancels and monitors runs.
	RoleDispatcher = "dispatcher"
	// RoleViewer has read-only access to runs and attempt logs.
	RoleViewer = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
