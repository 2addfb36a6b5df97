package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotAMember          = errors.New("user is not a member of the group")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrAlreadyProcessed    = errors.New("request has already been processed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExceedsGroupFunds   = errors.New("amount exceeds available group funds")
	ErrInvalidAmount       = errors.New("amount must be positive with at most two decimal places")
	ErrNotFound            = errors.New("not found")
	ErrGroupNotFound       = fmt.Errorf("group %w", ErrNotFound)
	ErrPersistence         = errors.New("persistence failure")
	ErrNotOwner            = errors.New("loan does not belong to user")
	ErrNotActive           = errors.New("loan is not active")
	ErrInvalidInput        = errors.New("invalid input")
	ErrExceedsEligibility  = errors.New("amount exceeds loan eligibility")
	ErrInvalidCredentials  = errors.New("invalid email or password")
)
