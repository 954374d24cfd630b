package bot

import "strings"

// Callback is a parsed button payload.
type Callback struct {
	Action string
	Args   []string
}

// Menu tokens carried in button payloads, mapped to catalog plan ids. The
// tokens are part of the deployed button surface and cannot change without
// stranding in-flight chats.
var planTokens = map[string]string{
	"plano_teste":  "plano_teste",
	"plano_15dias": "plano1",
	"plano_mensal": "plano2",
	"plano_6meses": "plano3",
}

const (
	actionShowPlans = "ver_planos"
	actionBuyPlan   = "comprar"
	actionPaid      = "ja_paguei"
	actionVerify    = "verificar"
	actionUnknown   = "desconhecido"
)

// ParsePayload decodes a button payload into an action and its arguments.
// Unknown payloads parse to actionUnknown rather than failing: the bot logs
// and ignores them. Prefixed payloads split on the first delimiters only, so
// a plan id containing underscores (plano_teste) survives intact.
func ParsePayload(data string) Callback {
	switch {
	case data == actionShowPlans:
		return Callback{Action: actionShowPlans}
	case planTokens[data] != "":
		return Callback{Action: actionBuyPlan, Args: []string{planTokens[data]}}
	case strings.HasPrefix(data, actionPaid+"_"):
		rest := strings.TrimPrefix(data, actionPaid+"_")
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return Callback{Action: actionPaid, Args: parts}
		}
	case strings.HasPrefix(data, actionVerify+"_"):
		tx := strings.TrimPrefix(data, actionVerify+"_")
		if tx != "" {
			return Callback{Action: actionVerify, Args: []string{tx}}
		}
	}
	return Callback{Action: actionUnknown, Args: []string{data}}
}
