package models

// OutcomeKind is the terminal state of the decision for one message
type OutcomeKind string

const (
	OutcomeAccepted OutcomeKind = "accepted"
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeDropped  OutcomeKind = "dropped"
	OutcomeFailed   OutcomeKind = "failed"
)

// RejectReason explains a rejection that is reported back to the sender
type RejectReason string

const (
	RejectAttachmentCount RejectReason = "attachment_count"
	RejectAttachmentType  RejectReason = "attachment_type"
	RejectBarcode         RejectReason = "barcode"
)

// Outcome is the result of processing one message
type Outcome struct {
	Kind    OutcomeKind
	Reason  RejectReason // Set for rejected outcomes
	Detail  string       // Human readable context for logs
	Barcode string       // Accepted barcode text
	Path    string       // Written PDF path
}

// Accepted creates an accepted outcome
func Accepted(barcode, path string) Outcome {
	return Outcome{Kind: OutcomeAccepted, Barcode: barcode, Path: path}
}

// Rejected creates a rejected outcome
func Rejected(reason RejectReason, detail string) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason, Detail: detail}
}

// Dropped creates an outcome that is logged but never reported to the sender
func Dropped(detail string) Outcome {
	return Outcome{Kind: OutcomeDropped, Detail: detail}
}

// Notifies reports whether the sender should receive a rejection email
func (o Outcome) Notifies() bool {
	return o.Kind == OutcomeRejected
}
