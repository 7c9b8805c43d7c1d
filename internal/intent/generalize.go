package intent

// MaxGeneralizationSteps bounds how many OneStepUp calls any intent needs to reach Fastest:
// city, state or server, then country with features, then country, then Fastest.
const MaxGeneralizationSteps = 3

type oneStepUp struct{}

func (oneStepUp) FastestInCountry(i FastestInCountry) ConnectIntent {
	switch {
	case i.Country != CountryFastest:
		return FastestInCountry{Country: CountryFastest, Features: i.Features}
	case !i.Features.IsEmpty():
		return FastestInCountry{Country: i.Country}
	}
	return Fastest()
}

func (oneStepUp) FastestInCity(i FastestInCity) ConnectIntent {
	return FastestInCountry{Country: i.Country, Features: i.Features}
}

func (oneStepUp) FastestInState(i FastestInState) ConnectIntent {
	return FastestInCountry{Country: i.Country, Features: i.Features}
}

func (oneStepUp) SecureCore(i SecureCore) ConnectIntent {
	switch {
	case i.EntryCountry != CountryFastest:
		return SecureCore{ExitCountry: i.ExitCountry, EntryCountry: CountryFastest}
	case i.ExitCountry != CountryFastest:
		return SecureCore{ExitCountry: CountryFastest, EntryCountry: CountryFastest}
	}
	return Fastest()
}

func (oneStepUp) Server(i Server) ConnectIntent {
	return FastestInCountry{Country: i.ExitCountry, Features: i.Features}
}

func (oneStepUp) Gateway(i Gateway) ConnectIntent {
	if i.ServerID != "" {
		return Gateway{GatewayName: i.GatewayName}
	}
	return Fastest()
}

// OneStepUp returns a strictly more general intent than i, or Fastest for Fastest itself.
// The result is never linked to a profile: once relaxed, the intent no longer is the
// profile's target.
func OneStepUp(i ConnectIntent) ConnectIntent {
	return Visit[ConnectIntent](i, oneStepUp{})
}

// Generalizations returns the chain of intents OneStepUp produces from i, excluding i and
// ending with Fastest. It is empty when i already is Fastest.
func Generalizations(i ConnectIntent) []ConnectIntent {
	var chain []ConnectIntent
	cur := i
	for n := 0; n < MaxGeneralizationSteps && !IsDefault(cur); n++ {
		cur = OneStepUp(cur)
		chain = append(chain, cur)
	}
	return chain
}
