package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrDuplicateReport         = errors.New("complaint already reported by this citizen")
	ErrAlreadyUpvoted          = errors.New("complaint already upvoted by this citizen")
	ErrAlreadyBanned           = errors.New("citizen is already banned")
	ErrNotBanned               = errors.New("citizen is not banned")
	ErrCitizenBanned           = errors.New("citizen is banned")
	ErrForbidden               = errors.New("not allowed to act on this complaint")
	ErrBumpNotEligible         = errors.New("complaint is not eligible for a bump")
	ErrAppealLimitReached      = errors.New("appeal limit reached for this complaint")
	ErrReportClosed            = errors.New("report has already been resolved")
)

// ValidationError is raised for missing or malformed input before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// NotFoundError names the missing entity; it matches ErrNotFound.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransitionError matches ErrInvalidStatusTransition.
type TransitionError struct {
	From   ComplaintStatus
	To     ComplaintStatus
	Reason string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidStatusTransition }

// DuplicateComplaintError is a soft block; it carries the complaint the citizen
// should track instead, and whether a bump is on offer.
type DuplicateComplaintError struct {
	Existing *Complaint
	CanBump  bool
}

func (e *DuplicateComplaintError) Error() string {
	return fmt.Sprintf("duplicate of open complaint %d", e.Existing.ID)
}

// ImageReusedError is returned when an image is already attached to another complaint.
type ImageReusedError struct {
	Fingerprint string
	ComplaintID int64
}

func (e *ImageReusedError) Error() string {
	return fmt.Sprintf("image already attached to complaint %d", e.ComplaintID)
}

// RateLimitError signals that the caller should back off or pass a challenge.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("submission rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

// DatabaseError wraps a storage failure. Returning it from a transaction
// function rolls the whole transaction back.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }
