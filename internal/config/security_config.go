package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// RouteSecurityConfig maps named HTTP routes to their required security level
var RouteSecurityConfig = map[string]SecurityLevel{
	// Operational - Public
	"Health":  SecurityPublic,
	"Metrics": SecurityPublic,

	// Payment provider callbacks - Public
	"MpesaCallback": SecurityPublic,

	// Users
	"Login":        SecurityPublic,
	"RegisterUser": SecurityPublic,
	"GetMe":        SecurityAccess,

	// Groups - Access Protected
	"CreateGroup": SecurityAccess,
	"GetGroup":    SecurityAccess,
	"AddMember":   SecurityAccess,
	"ListMembers": SecurityAccess,

	// Balances and contributions - Access Protected
	"GetAvailableBalance":    SecurityAccess,
	"Contribute":             SecurityAccess,
	"RecordCashContribution": SecurityAccess,
	"ListMyTransactions":     SecurityAccess,

	// Withdrawals - Access Protected
	"SubmitWithdrawal":       SecurityAccess,
	"DecideWithdrawal":       SecurityAccess,
	"GetWithdrawal":          SecurityAccess,
	"ListMyWithdrawals":      SecurityAccess,
	"ListGroupWithdrawals":   SecurityAccess,
	"ListPendingWithdrawals": SecurityAccess,

	// Loans - Access Protected
	"CheckEligibility":   SecurityAccess,
	"RequestLoan":        SecurityAccess,
	"ApproveLoan":        SecurityAccess,
	"RejectLoan":         SecurityAccess,
	"RepayLoan":          SecurityAccess,
	"GetLoan":            SecurityAccess,
	"GetLoanBalance":     SecurityAccess,
	"ListMyLoans":        SecurityAccess,
	"ListGroupLoans":     SecurityAccess,
	"GetLoanStats":       SecurityAccess,
	"GetLoanSettings":    SecurityAccess,
	"UpdateLoanSettings": SecurityAccess,

	// Notifications - Access Protected
	"ListNotifications":    SecurityAccess,
	"MarkNotificationRead": SecurityAccess,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := RouteSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityAccess
}
