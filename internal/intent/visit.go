package intent

import "fmt"

// Visitor handles every ConnectIntent variant. Adding a variant adds a method here, so
// every implementation stops compiling until it handles the new case.
type Visitor[T any] interface {
	FastestInCountry(FastestInCountry) T
	FastestInCity(FastestInCity) T
	FastestInState(FastestInState) T
	SecureCore(SecureCore) T
	Server(Server) T
	Gateway(Gateway) T
}

// Visit dispatches i to the matching Visitor method.
func Visit[T any](i ConnectIntent, v Visitor[T]) T {
	switch x := i.(type) {
	case FastestInCountry:
		return v.FastestInCountry(x)
	case FastestInCity:
		return v.FastestInCity(x)
	case FastestInState:
		return v.FastestInState(x)
	case SecureCore:
		return v.SecureCore(x)
	case Server:
		return v.Server(x)
	case Gateway:
		return v.Gateway(x)
	}
	panic(fmt.Sprintf("intent: unhandled connect intent %T", i))
}
