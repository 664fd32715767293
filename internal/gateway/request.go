package gateway

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/commercetools/commercetools-payone-integration-sub001/internal/models"
)

const (
	apiVersion       = "3.11"
	maxReferenceSize = 20

	RequestPreauthorization = "preauthorization"
	RequestAuthorization    = "authorization"
	RequestCapture          = "capture"
)

// secretParams never reach the interaction log.
var secretParams = []string{"key"}

// Credentials identify this merchant installation at PAYONE.
type Credentials struct {
	MerchantID   string
	PortalID     string
	SubAccountID string
	Key          string
	Mode         string
}

// KeyHash is the md5 hex digest of the portal key, the form PAYONE expects in
// requests and sends back in notifications.
func (c Credentials) KeyHash() string {
	sum := md5.Sum([]byte(c.Key))
	return hex.EncodeToString(sum[:])
}

// RedirectURLs are handed to PAYONE for methods that send the customer away.
// Each may contain one %s, replaced by the payment id.
type RedirectURLs struct {
	Success string
	Error   string
	Back    string
}

type RequestFactory struct {
	credentials Credentials
	redirects   RedirectURLs
}

func NewRequestFactory(credentials Credentials, redirects RedirectURLs) *RequestFactory {
	return &RequestFactory{credentials: credentials, redirects: redirects}
}

// Build returns the outbound parameters for transaction tx of payment p,
// tagged with sequence.
//
// AUTHORIZATION maps to a preauthorization. CHARGE maps to a capture of the
// existing preauthorization when one succeeded, otherwise to an immediate
// authorization.
func (f *RequestFactory) Build(p *models.Payment, tx models.Transaction, sequence int) (map[string]string, error) {
	clearingType := p.Method.ClearingType()
	if clearingType == "" {
		return nil, fmt.Errorf("payment method %s has no clearing type", p.Method)
	}

	params := f.baseParams()
	params["amount"] = strconv.FormatInt(tx.Amount.MinorUnits(), 10)
	params["currency"] = tx.Amount.Currency
	params["sequencenumber"] = strconv.Itoa(sequence)

	switch tx.Type {
	case models.TransactionTypeAuthorization:
		params["request"] = RequestPreauthorization
	case models.TransactionTypeCharge:
		if _, ok := p.SuccessfulAuthorization(); ok && p.InterfaceID != "" {
			params["request"] = RequestCapture
			params["txid"] = p.InterfaceID
			return params, nil
		}
		params["request"] = RequestAuthorization
	default:
		return nil, fmt.Errorf("transaction type %s cannot be sent to the gateway", tx.Type)
	}

	params["clearingtype"] = clearingType
	params["reference"] = reference(p)
	if lang := p.CustomFields[models.CustomFieldLanguage]; lang != "" {
		params["language"] = lang
	}

	switch p.Method {
	case models.MethodPayPal:
		params["wallettype"] = "PPE"
	case models.MethodSofortueberweisung:
		params["onlinebanktransfertype"] = "PNT"
	}

	if p.Method.RequiresRedirect() {
		params["successurl"] = expand(f.redirects.Success, p.ID)
		params["errorurl"] = expand(f.redirects.Error, p.ID)
		params["backurl"] = expand(f.redirects.Back, p.ID)
	}

	return params, nil
}

func (f *RequestFactory) baseParams() map[string]string {
	return map[string]string{
		"mid":         f.credentials.MerchantID,
		"portalid":    f.credentials.PortalID,
		"aid":         f.credentials.SubAccountID,
		"key":         f.credentials.KeyHash(),
		"mode":        f.credentials.Mode,
		"api_version": apiVersion,
		"encoding":    "UTF-8",
	}
}

// RedactSecrets returns a copy of params safe to store in the interaction log.
func RedactSecrets(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, k := range secretParams {
		delete(out, k)
	}
	return out
}

func reference(p *models.Payment) string {
	ref := p.Reference
	if ref == "" {
		ref = p.ID
	}
	if len(ref) > maxReferenceSize {
		ref = ref[:maxReferenceSize]
	}
	return ref
}

func expand(template, paymentID string) string {
	return strings.ReplaceAll(template, "%s", paymentID)
}
