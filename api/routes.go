package api

import (
	"github.com/gorilla/mux"
)

// NewRouter returns a router serving every ledger route of s.
func NewRouter(s *Service) *mux.Router {
	r := mux.NewRouter()
	RegisterRoutes(r, s)
	return r
}

// RegisterRoutes sets up all the HTTP routes for the ledger
func RegisterRoutes(r *mux.Router, s *Service) {

	// Ledger-wide state and parameters
	r.HandleFunc("/ledger", s.Ledger).Methods("GET")
	r.HandleFunc("/ledger/rules", s.Rules).Methods("GET")
	r.HandleFunc("/ledger/supply", s.TotalSupply).Methods("GET")
	r.HandleFunc("/ledger/points/{epoch:[0-9]+}", s.Point).Methods("GET")
	r.HandleFunc("/ledger/checkpoint", s.Checkpoint).Methods("POST")

	// Lock lifecycle
	r.HandleFunc("/locks", s.CreateLock).Methods("POST")
	r.HandleFunc("/locks/{user}", s.Lock).Methods("GET")
	r.HandleFunc("/locks/{user}/amount", s.IncreaseAmount).Methods("POST")
	r.HandleFunc("/locks/{user}/expiry", s.IncreaseUnlockTime).Methods("POST")
	r.HandleFunc("/locks/{user}/withdraw", s.Withdraw).Methods("POST")
	r.HandleFunc("/users/{user}/balance", s.BalanceOf).Methods("GET")
	r.HandleFunc("/users/{user}/points/{epoch:[0-9]+}", s.UserPoint).Methods("GET")

	// Reward distribution
	r.HandleFunc("/rewards/{token}", s.Rewards).Methods("GET")
	r.HandleFunc("/rewards/{token}", s.ReceiveReward).Methods("POST")
	r.HandleFunc("/rewards/{token}/claim", s.ClaimRewards).Methods("POST")
	r.HandleFunc("/rewards/{token}/claimable/{user}", s.ClaimableRewards).Methods("GET")
	r.HandleFunc("/rewards/{token}/windows/{window:[0-9]+}", s.WindowRewards).Methods("GET")
	r.HandleFunc("/windows/{window:[0-9]+}/average", s.WindowAverage).Methods("GET")

	// Owner operations
	r.HandleFunc("/admin/emergency", s.EnableEmergency).Methods("POST")
	r.HandleFunc("/admin/emergency/withdraw", s.EmergencyWithdraw).Methods("POST")
	r.HandleFunc("/admin/checkpoint-delay", s.SetCheckpointDelay).Methods("POST")
	r.HandleFunc("/admin/operations", s.SetOperationDisabled).Methods("POST")
	r.HandleFunc("/admin/owner", s.TransferOwnership).Methods("POST")
	r.HandleFunc("/admin/stuck/redistribute", s.RedistributeStuck).Methods("POST")
	r.HandleFunc("/admin/stuck/recover", s.RecoverStuck).Methods("POST")

	// Custody bank, used by test networks to fund accounts
	r.HandleFunc("/custody/mint", s.Mint).Methods("POST")
	r.HandleFunc("/custody/{token}/{account}", s.Balance).Methods("GET")
}
