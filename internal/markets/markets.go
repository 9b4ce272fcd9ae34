// Package markets holds the static market catalog the public trade channels
// are seeded from.
package markets

type Market struct {
	BaseCurrency  string
	QuoteCurrency string
}

func (m Market) Code() string {
	return m.BaseCurrency + "/" + m.QuoteCurrency
}

func Default() Market {
	return Market{BaseCurrency: "BTC", QuoteCurrency: "USD"}
}

func BSQ() Market {
	return Market{BaseCurrency: "BSQ", QuoteCurrency: "BTC"}
}

func XMR() Market {
	return Market{BaseCurrency: "XMR", QuoteCurrency: "BTC"}
}

// Major returns the high-volume fiat markets, default market first.
func Major() []Market {
	return []Market{
		Default(),
		{BaseCurrency: "BTC", QuoteCurrency: "EUR"},
		{BaseCurrency: "BTC", QuoteCurrency: "GBP"},
		{BaseCurrency: "BTC", QuoteCurrency: "CAD"},
		{BaseCurrency: "BTC", QuoteCurrency: "AUD"},
		{BaseCurrency: "BTC", QuoteCurrency: "BRL"},
	}
}

// ForTradeChannels is the bootstrap catalog: the default market, every major
// market and the BSQ and XMR markets, without duplicates.
func ForTradeChannels() []Market {
	seen := map[string]bool{}
	out := make([]Market, 0, 10)
	catalog := append([]Market{Default()}, Major()...)
	catalog = append(catalog, BSQ(), XMR())
	for _, m := range catalog {
		if seen[m.Code()] {
			continue
		}
		seen[m.Code()] = true
		out = append(out, m)
	}
	return out
}
