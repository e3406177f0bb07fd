package banking

// Operation names used for fault context, metrics and logs.
const (
	OpAuthenticate          = "AUTHENTICATE"
	OpCreateClient          = "CREATE_CLIENT"
	OpGetClient             = "GET_CLIENT"
	OpGetClientByExternalID = "GET_CLIENT_BY_EXTERNAL_ID"
	OpUpdateClient          = "UPDATE_CLIENT"
	OpActivateClient        = "ACTIVATE_CLIENT"
	OpCreateLoan            = "CREATE_LOAN"
	OpGetLoan               = "GET_LOAN"
	OpGetLoanByExternalID   = "GET_LOAN_BY_EXTERNAL_ID"
	OpUpdateLoan            = "UPDATE_LOAN"
	OpApproveLoan           = "APPROVE_LOAN"
	OpDisburseLoan          = "DISBURSE_LOAN"
	OpRejectLoan            = "REJECT_LOAN"
)

// Request defaults applied when a request leaves them empty.
const (
	DefaultDateFormat = "yyyy-MM-dd"
	DefaultLocale     = "en"
)

// Credentials are exchanged for a session key.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is the response of the authentication endpoint.
type AuthResult struct {
	Username      string `json:"username"`
	UserID        int64  `json:"userId"`
	Key           string `json:"base64EncodedAuthenticationKey"`
	Authenticated bool   `json:"authenticated"`
	OfficeID      int64  `json:"officeId"`
	OfficeName    string `json:"officeName"`
}

// EnumValue is the code/value pair the remote API uses for statuses.
type EnumValue struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Value string `json:"value"`
}

// ClientAccount is a customer record.
type ClientAccount struct {
	ID          int64     `json:"id"`
	AccountNo   string    `json:"accountNo,omitempty"`
	ExternalID  string    `json:"externalId,omitempty"`
	Status      EnumValue `json:"status"`
	Active      bool      `json:"active"`
	Firstname   string    `json:"firstname,omitempty"`
	Lastname    string    `json:"lastname,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	MobileNo    string    `json:"mobileNo,omitempty"`
	OfficeID    int64     `json:"officeId"`
	OfficeName  string    `json:"officeName,omitempty"`
}

// LoanStatus carries the lifecycle flags of a loan.
type LoanStatus struct {
	EnumValue
	PendingApproval    bool `json:"pendingApproval"`
	WaitingForDisburse bool `json:"waitingForDisbursal"`
	Active             bool `json:"active"`
	ClosedObligations  bool `json:"closedObligationsMet"`
	Rejected           bool `json:"closedRejected"`
}

// LoanAccount is a loan record.
type LoanAccount struct {
	ID          int64      `json:"id"`
	AccountNo   string     `json:"accountNo,omitempty"`
	ExternalID  string     `json:"externalId,omitempty"`
	Status      LoanStatus `json:"status"`
	ClientID    int64      `json:"clientId"`
	ClientName  string     `json:"clientName,omitempty"`
	ProductID   int64      `json:"loanProductId"`
	ProductName string     `json:"loanProductName,omitempty"`
	Principal   float64    `json:"principal"`
	Currency    struct {
		Code string `json:"code"`
	} `json:"currency"`
}

// CommandResult is returned by every write endpoint.
type CommandResult struct {
	OfficeID           int64                  `json:"officeId,omitempty"`
	ClientID           int64                  `json:"clientId,omitempty"`
	LoanID             int64                  `json:"loanId,omitempty"`
	ResourceID         int64                  `json:"resourceId"`
	ResourceExternalID string                 `json:"resourceExternalId,omitempty"`
	Changes            map[string]interface{} `json:"changes,omitempty"`
}

// CreateClientRequest opens a client.
type CreateClientRequest struct {
	OfficeID        int64  `json:"officeId" validate:"required,gt=0"`
	LegalFormID     int64  `json:"legalFormId,omitempty"`
	Firstname       string `json:"firstname" validate:"required"`
	Lastname        string `json:"lastname" validate:"required"`
	ExternalID      string `json:"externalId,omitempty"`
	MobileNo        string `json:"mobileNo,omitempty"`
	Active          bool   `json:"active"`
	ActivationDate  string `json:"activationDate,omitempty" validate:"required_if=Active true"`
	SubmittedOnDate string `json:"submittedOnDate,omitempty"`
	DateFormat      string `json:"dateFormat,omitempty"`
	Locale          string `json:"locale,omitempty"`
}

// UpdateClientRequest changes the named client fields. Empty fields are left untouched.
type UpdateClientRequest struct {
	Firstname  string `json:"firstname,omitempty"`
	Lastname   string `json:"lastname,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
	MobileNo   string `json:"mobileNo,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (r UpdateClientRequest) IsEmpty() bool {
	return r == UpdateClientRequest{}
}

// ActivateClientRequest activates a pending client.
type ActivateClientRequest struct {
	ActivationDate string `json:"activationDate" validate:"required"`
	DateFormat     string `json:"dateFormat,omitempty"`
	Locale         string `json:"locale,omitempty"`
}

// CreateLoanRequest submits a loan application.
type CreateLoanRequest struct {
	ClientID                          int64   `json:"clientId" validate:"required,gt=0"`
	ProductID                         int64   `json:"productId" validate:"required,gt=0"`
	ExternalID                        string  `json:"externalId,omitempty"`
	Principal                         float64 `json:"principal" validate:"gt=0"`
	LoanTermFrequency                 int     `json:"loanTermFrequency" validate:"gt=0"`
	LoanTermFrequencyType             int     `json:"loanTermFrequencyType" validate:"gte=0,lte=3"`
	NumberOfRepayments                int     `json:"numberOfRepayments" validate:"gt=0"`
	RepaymentEvery                    int     `json:"repaymentEvery" validate:"gt=0"`
	RepaymentFrequencyType            int     `json:"repaymentFrequencyType" validate:"gte=0,lte=3"`
	InterestRatePerPeriod             float64 `json:"interestRatePerPeriod" validate:"gte=0"`
	AmortizationType                  int     `json:"amortizationType"`
	InterestType                      int     `json:"interestType"`
	InterestCalculationPeriodType     int     `json:"interestCalculationPeriodType"`
	TransactionProcessingStrategyCode string  `json:"transactionProcessingStrategyCode,omitempty"`
	ExpectedDisbursementDate          string  `json:"expectedDisbursementDate" validate:"required"`
	SubmittedOnDate                   string  `json:"submittedOnDate" validate:"required"`
	LoanType                          string  `json:"loanType,omitempty"`
	DateFormat                        string  `json:"dateFormat,omitempty"`
	Locale                            string  `json:"locale,omitempty"`
}

// UpdateLoanRequest modifies a loan application that is still pending approval.
type UpdateLoanRequest struct {
	Principal                float64 `json:"principal,omitempty" validate:"gte=0"`
	NumberOfRepayments       int     `json:"numberOfRepayments,omitempty" validate:"gte=0"`
	InterestRatePerPeriod    float64 `json:"interestRatePerPeriod,omitempty" validate:"gte=0"`
	ExpectedDisbursementDate string  `json:"expectedDisbursementDate,omitempty"`
	ExternalID               string  `json:"externalId,omitempty"`
	DateFormat               string  `json:"dateFormat,omitempty"`
	Locale                   string  `json:"locale,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (r UpdateLoanRequest) IsEmpty() bool {
	r.DateFormat, r.Locale = "", ""
	return r == UpdateLoanRequest{}
}

// LoanCommand carries the date, optional amount and note of a loan state change.
type LoanCommand struct {
	Date       string  `json:"-" validate:"required"`
	Amount     float64 `json:"-" validate:"gte=0"`
	Note       string  `json:"-"`
	DateFormat string  `json:"-"`
	Locale     string  `json:"-"`
}
