package enums

// Gateway identifies the processor that settled a transaction. Card
// payments go through the simulated acquirer, wallet and cash methods
// are settled internally.
type Gateway string

const (
	GatewayCulqi    Gateway = "culqi"
	GatewayInternal Gateway = "internal"

	// GatewayUnknown marks attempts with a method no handler claims.
	GatewayUnknown Gateway = "unknown"
)

// String implements fmt.Stringer.
func (g Gateway) String() string {
	return string(g)
}
