package api

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"

	"github.com/rony4d/go-opera-escrow/custody"
	"github.com/rony4d/go-opera-escrow/escrow"
	"github.com/rony4d/go-opera-escrow/inter"
)

var (
	errBadAddress = errors.New("invalid address")
	errBadNumber  = errors.New("invalid number")
	errBadPayload = errors.New("invalid request payload")
)

type lockRequest struct {
	User   common.Address        `json:"user"`
	Amount *math.HexOrDecimal256 `json:"amount"`
	Expiry inter.Timestamp       `json:"expiry"`
}

type rewardRequest struct {
	From   common.Address        `json:"from"`
	Amount *math.HexOrDecimal256 `json:"amount"`
}

type claimRequest struct {
	User common.Address `json:"user"`
}

type adminRequest struct {
	Caller   common.Address        `json:"caller"`
	To       common.Address        `json:"to"`
	Token    common.Address        `json:"token"`
	Amount   *math.HexOrDecimal256 `json:"amount"`
	Delay    inter.Timestamp       `json:"delay"`
	Op       string                `json:"op"`
	Disabled bool                  `json:"disabled"`
}

type mintRequest struct {
	Token   common.Address        `json:"token"`
	Account common.Address        `json:"account"`
	Amount  *math.HexOrDecimal256 `json:"amount"`
}

type lockView struct {
	User    common.Address  `json:"user"`
	Amount  string          `json:"amount"`
	End     inter.Timestamp `json:"end"`
	Balance string          `json:"balance"`
}

type pointView struct {
	Epoch uint64          `json:"epoch"`
	Bias  string          `json:"bias"`
	Slope string          `json:"slope"`
	Ts    inter.Timestamp `json:"ts"`
	Blk   uint64          `json:"blk"`
}

type ledgerView struct {
	Network        string          `json:"network"`
	Owner          common.Address  `json:"owner"`
	Emergency      bool            `json:"emergency"`
	Epoch          uint64          `json:"epoch"`
	CurrentWindow  inter.Timestamp `json:"currentWindow"`
	TotalSupply    string          `json:"totalSupply"`
	Supply         string          `json:"supply"`
	Members        uint64          `json:"members"`
	LastCheckpoint inter.Timestamp `json:"lastManualCheckpoint"`
	StateHash      string          `json:"stateHash"`
}

func amountOf(v *math.HexOrDecimal256) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(v))
}

func pointOf(epoch uint64, p inter.Point) pointView {
	return pointView{
		Epoch: epoch,
		Bias:  p.Bias.String(),
		Slope: p.Slope.String(),
		Ts:    p.Ts,
		Blk:   uint64(p.Blk),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadAddress), errors.Is(err, errBadNumber), errors.Is(err, errBadPayload):
		return http.StatusBadRequest
	case errors.Is(err, custody.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, escrow.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrCheckpointBacklog):
		return http.StatusServiceUnavailable
	case escrow.IsInputError(err):
		return http.StatusBadRequest
	case escrow.Code(err) == "Internal", errors.Is(err, escrow.ErrInvariant):
		return http.StatusInternalServerError
	}
	return http.StatusConflict
}

func codeOf(err error) string {
	switch {
	case errors.Is(err, errBadAddress), errors.Is(err, errBadNumber), errors.Is(err, errBadPayload):
		return "BadRequest"
	case errors.Is(err, custody.ErrInsufficientFunds):
		return "InsufficientFunds"
	}
	return escrow.Code(err)
}

func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	entry := s.log.WithError(err).WithField("path", r.URL.Path)
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  codeOf(err),
	})
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadPayload
	}
	return nil
}

func pathAddress(r *http.Request, name string) (common.Address, error) {
	v := mux.Vars(r)[name]
	if !common.IsHexAddress(v) {
		return common.Address{}, errBadAddress
	}
	return common.HexToAddress(v), nil
}

func pathUint(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, errBadNumber
	}
	return v, nil
}

// queryTime reads the optional "ts" parameter.
func queryTime(r *http.Request) (inter.Timestamp, bool, error) {
	v := r.URL.Query().Get("ts")
	if v == "" {
		return 0, false, nil
	}
	ts, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false, errBadNumber
	}
	return inter.Timestamp(ts), true, nil
}

func operationOf(name string) (escrow.Operation, bool) {
	for _, op := range []escrow.Operation{escrow.OpCreateLock, escrow.OpIncreaseAmount, escrow.OpIncreaseUnlockTime, escrow.OpWithdraw} {
		if op.String() == name {
			return op, true
		}
	}
	return 0, false
}

// Ledger reports the ledger-wide state.
func (s *Service) Ledger(w http.ResponseWriter, r *http.Request) {
	var v ledgerView
	s.View(func(e *escrow.Engine) {
		v = ledgerView{
			Network:        e.Rules().Name,
			Owner:          e.Owner(),
			Emergency:      e.Emergency(),
			Epoch:          e.Epoch(),
			CurrentWindow:  e.CurrentWindow(),
			TotalSupply:    e.TotalSupply().String(),
			Supply:         e.Supply().String(),
			Members:        e.Members(),
			LastCheckpoint: e.LastManualCheckpoint(),
			StateHash:      e.StateHash().String(),
		}
	})
	writeJSON(w, http.StatusOK, v)
}

// Rules returns the ledger parameters.
func (s *Service) Rules(w http.ResponseWriter, r *http.Request) {
	var rules escrow.Rules
	s.View(func(e *escrow.Engine) {
		rules = e.Rules()
	})
	writeJSON(w, http.StatusOK, rules)
}

// CreateLock opens a new lock.
func (s *Service) CreateLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.Update(func(e *escrow.Engine) error {
		return e.CreateLock(req.User, amountOf(req.Amount), req.Expiry)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeLock(w, http.StatusCreated, req.User)
}

// IncreaseAmount adds to an existing lock.
func (s *Service) IncreaseAmount(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req lockRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.Update(func(e *escrow.Engine) error {
		return e.IncreaseAmount(user, amountOf(req.Amount))
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeLock(w, http.StatusOK, user)
}

// IncreaseUnlockTime extends an existing lock.
func (s *Service) IncreaseUnlockTime(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req lockRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err = s.Update(func(e *escrow.Engine) error {
		return e.IncreaseUnlockTime(user, req.Expiry)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeLock(w, http.StatusOK, user)
}

// Withdraw releases an expired lock.
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var amount *big.Int
	err = s.Update(func(e *escrow.Engine) error {
		var err error
		amount, err = e.Withdraw(user)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user":   user.Hex(),
		"amount": amount.String(),
	})
}

// Lock returns a user's lock and current balance.
func (s *Service) Lock(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeLock(w, http.StatusOK, user)
}

func (s *Service) writeLock(w http.ResponseWriter, status int, user common.Address) {
	var v lockView
	s.View(func(e *escrow.Engine) {
		l := e.Locked(user)
		v = lockView{
			User:    user,
			Amount:  l.Amount.String(),
			End:     l.End,
			Balance: e.BalanceOf(user).String(),
		}
	})
	writeJSON(w, status, v)
}

// BalanceOf returns a user's weight, now or at the "ts" query parameter.
func (s *Service) BalanceOf(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ts, ok, err := queryTime(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var v *big.Int
	s.View(func(e *escrow.Engine) {
		if ok {
			v = e.BalanceOfAt(user, ts)
		} else {
			v = e.BalanceOf(user)
		}
	})
	writeJSON(w, http.StatusOK, map[string]string{"balance": v.String()})
}

// TotalSupply returns the total weight, now or at the "ts" query parameter.
func (s *Service) TotalSupply(w http.ResponseWriter, r *http.Request) {
	ts, ok, err := queryTime(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var v *big.Int
	s.View(func(e *escrow.Engine) {
		if ok {
			v = e.TotalSupplyAt(ts)
		} else {
			v = e.TotalSupply()
		}
	})
	writeJSON(w, http.StatusOK, map[string]string{"totalSupply": v.String()})
}

// Point returns one global history point.
func (s *Service) Point(w http.ResponseWriter, r *http.Request) {
	epoch, err := pathUint(r, "epoch")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var (
		p  inter.Point
		ok bool
	)
	s.View(func(e *escrow.Engine) {
		p, ok = e.PointAt(epoch)
	})
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such epoch", "code": "NotFound"})
		return
	}
	writeJSON(w, http.StatusOK, pointOf(epoch, p))
}

// UserPoint returns one point of a user's history.
func (s *Service) UserPoint(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	epoch, err := pathUint(r, "epoch")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var (
		p  inter.Point
		ok bool
	)
	s.View(func(e *escrow.Engine) {
		p, ok = e.UserPointAt(user, epoch)
	})
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such epoch", "code": "NotFound"})
		return
	}
	writeJSON(w, http.StatusOK, pointOf(epoch, p))
}

// ReceiveReward deposits a reward into the current window.
func (s *Service) ReceiveReward(w http.ResponseWriter, r *http.Request) {
	token, err := pathAddress(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req rewardRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var window inter.Timestamp
	err = s.Update(func(e *escrow.Engine) error {
		window = e.CurrentWindow()
		return e.ReceiveReward(req.From, token, amountOf(req.Amount))
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":  token.Hex(),
		"window": window,
		"amount": amountOf(req.Amount).String(),
	})
}

// ClaimRewards pays out a user's share of closed windows.
func (s *Service) ClaimRewards(w http.ResponseWriter, r *http.Request) {
	token, err := pathAddress(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req claimRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	var (
		amount *big.Int
		cursor inter.Timestamp
	)
	err = s.Update(func(e *escrow.Engine) error {
		var err error
		amount, err = e.ClaimRewards(req.User, token)
		cursor = e.ClaimedWindow(req.User, token)
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"amount":        amount.String(),
		"claimedWindow": cursor,
	})
}

// ClaimableRewards previews a claim without changing state.
func (s *Service) ClaimableRewards(w http.ResponseWriter, r *http.Request) {
	token, err := pathAddress(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := pathAddress(r, "user")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var (
		amount *big.Int
		cursor inter.Timestamp
	)
	s.View(func(e *escrow.Engine) {
		amount, cursor, err = e.ClaimableRewards(user, token)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"amount":        amount.String(),
		"claimedWindow": cursor,
	})
}

// Rewards reports the lifetime accounting of a reward token.
func (s *Service) Rewards(w http.ResponseWriter, r *http.Request) {
	token, err := pathAddress(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make(map[string]string)
	s.View(func(e *escrow.Engine) {
		t := e.RewardTotals(token)
		out["deposited"] = t.Deposited.String()
		out["claimed"] = t.Claimed.String()
		out["stuck"] = t.Stuck.String()
		out["recovered"] = t.Recovered.String()
	})
	writeJSON(w, http.StatusOK, out)
}

// WindowRewards returns the rewards deposited in one window.
func (s *Service) WindowRewards(w http.ResponseWriter, r *http.Request) {
	token, err := pathAddress(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	window, err := pathUint(r, "window")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var v *big.Int
	s.View(func(e *escrow.Engine) {
		v = e.WindowRewards(inter.Timestamp(window), token)
	})
	writeJSON(w, http.StatusOK, map[string]string{"amount": v.String()})
}

// WindowAverage returns the average total supply over a closed window, or the
// average balance of the "user" query parameter.
func (s *Service) WindowAverage(w http.ResponseWriter, r *http.Request) {
	window, err := pathUint(r, "window")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var user *common.Address
	if v := r.URL.Query().Get("user"); v != "" {
		if !common.IsHexAddress(v) {
			s.fail(w, r, errBadAddress)
			return
		}
		a := common.HexToAddress(v)
		user = &a
	}
	var avg *big.Int
	s.View(func(e *escrow.Engine) {
		if user != nil {
			avg, err = e.AverageUserBalanceOverWindow(*user, inter.Timestamp(window))
		} else {
			avg, err = e.AverageTotalSupplyOverWindow(inter.Timestamp(window))
		}
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"average": avg.String()})
}

// Checkpoint catches the global ledger up with the clock.
func (s *Service) Checkpoint(w http.ResponseWriter, r *http.Request) {
	var complete bool
	err := s.Update(func(e *escrow.Engine) error {
		var err error
		complete, err = e.Checkpoint()
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"complete": complete})
}

// EnableEmergency switches the ledger into emergency mode.
func (s *Service) EnableEmergency(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, func(e *escrow.Engine, req *adminRequest) error {
		return e.EnableEmergency(req.Caller)
	})
}

// EmergencyWithdraw moves funds out of custody in emergency mode.
func (s *Service) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, func(e *escrow.Engine, req *adminRequest) error {
		return e.EmergencyWithdraw(req.Caller, req.Token, amountOf(req.Amount), req.To)
	})
}

// SetCheckpointDelay sets the manual checkpoint rate limit.
func (s *Service) SetCheckpointDelay(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, func(e *escrow.Engine, req *adminRequest) error {
		return e.SetMinManualCheckpointDelay(req.Caller, req.Delay)
	})
}

// SetOperationDisabled switches one user operation on or off.
func (s *Service) SetOperationDisabled(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, func(e *escrow.Engine, req *adminRequest) error {
		op, ok := operationOf(req.Op)
		if !ok {
			return errBadPayload
		}
		return e.SetOperationDisabled(req.Caller, op, req.Disabled)
	})
}

// TransferOwnership hands the admin role to another account.
func (s *Service) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, func(e *escrow.Engine, req *adminRequest) error {
		return e.TransferOwnership(req.Caller, req.To)
	})
}

// RedistributeStuck moves stuck rewards of a token into the current window.
func (s *Service) RedistributeStuck(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, func(e *escrow.Engine, req *adminRequest) error {
		_, err := e.RedistributeStuckRewards(req.Caller, req.Token)
		return err
	})
}

// RecoverStuck refunds stuck rewards of a token.
func (s *Service) RecoverStuck(w http.ResponseWriter, r *http.Request) {
	s.admin(w, r, func(e *escrow.Engine, req *adminRequest) error {
		_, err := e.RecoverStuckRewards(req.Caller, req.Token, req.To)
		return err
	})
}

func (s *Service) admin(w http.ResponseWriter, r *http.Request, fn func(e *escrow.Engine, req *adminRequest) error) {
	var req adminRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	err := s.Update(func(e *escrow.Engine) error {
		return fn(e, &req)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.WithField("path", r.URL.Path).WithField("caller", req.Caller.Hex()).Info("Admin request applied")
	s.Ledger(w, r)
}

// Mint credits an account in the custody bank. Only meaningful for test networks.
func (s *Service) Mint(w http.ResponseWriter, r *http.Request) {
	if s.bank == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no custody bank", "code": "NotFound"})
		return
	}
	var req mintRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount := amountOf(req.Amount)
	if amount.Sign() <= 0 {
		s.fail(w, r, escrow.ErrZeroAmount)
		return
	}
	var balance *big.Int
	err := s.Update(func(e *escrow.Engine) error {
		s.bank.Mint(req.Token, req.Account, amount)
		balance = s.bank.BalanceOf(req.Token, req.Account)
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"balance": balance.String()})
}

// Balance returns an account's custody balance of a token.
func (s *Service) Balance(w http.ResponseWriter, r *http.Request) {
	if s.bank == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no custody bank", "code": "NotFound"})
		return
	}
	token, err := pathAddress(r, "token")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := pathAddress(r, "account")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var v *big.Int
	s.View(func(e *escrow.Engine) {
		v = s.bank.BalanceOf(token, account)
	})
	writeJSON(w, http.StatusOK, map[string]string{"balance": v.String()})
}
