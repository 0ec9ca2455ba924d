package model

// DenyReason classifies a denied decision. It is only used for logging, clients never see it.
type DenyReason string

const (
	ReasonMalformedToken        DenyReason = "malformed_token"
	ReasonInvalidSignature      DenyReason = "invalid_signature"
	ReasonInsufficientPrivilege DenyReason = "insufficient_privilege"
	ReasonRepositoryError       DenyReason = "repository_error"
)

type Decision struct {
	Decision  bool       `json:"decision"`
	Privilege Privilege  `json:"privilege"`
	Reason    DenyReason `json:"-"`
}

func Allow(privilege Privilege) Decision {
	return Decision{Decision: true, Privilege: privilege}
}

func Deny(reason DenyReason, privilege Privilege) Decision {
	return Decision{Decision: false, Privilege: privilege, Reason: reason}
}

type HttpError struct {
	Status    int
	Message   string
	RootError error
}

func (err *HttpError) Error() string {
	return err.Message
}

func (err *HttpError) GetRoot() error {
	return err.RootError
}

// Unwrap exposes the root error to errors.Is and errors.As.
func (err *HttpError) Unwrap() error {
	return err.RootError
}

type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
