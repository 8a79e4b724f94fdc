package textutil

import (
	"strconv"
	"testing"

	"atlas-taman/models"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"diacritics", "Électroménager", "electromenager"},
		{"already plain", "electromenager", "electromenager"},
		{"mixed case", "IPHONE 15 Pro", "iphone 15 pro"},
		{"cedilla", "Français", "francais"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.input); got != tt.expected {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		ok       bool
	}{
		{"dirham with space grouping", "1 234,00 DH", 1234, true},
		{"comma treated as decimal", "12,499 MAD", 12.499, true},
		{"plain integer", "5999", 5999, true},
		{"dot decimal", "129.99", 129.99, true},
		{"multiple dots keep last", "1.234.56", 1234.56, true},
		{"currency prefix", "MAD 249,90", 249.9, true},
		{"no digits", "prix sur demande", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("ParsePrice(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

// Parsing the string form of a parsed price must yield the same value.
func TestParsePriceIdempotent(t *testing.T) {
	inputs := []string{"1 234,00 DH", "5999", "129.99", "249,90 MAD"}
	for _, input := range inputs {
		first, ok := ParsePrice(input)
		if !ok {
			t.Fatalf("ParsePrice(%q) unexpectedly failed", input)
		}
		second, ok := ParsePrice(strconv.FormatFloat(first, 'f', -1, 64))
		if !ok || second != first {
			t.Errorf("ParsePrice not idempotent for %q: %v then %v", input, first, second)
		}
	}
}

func TestParseShippingFee(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		ok       bool
	}{
		{"numeric fee", "Livraison: 49 DH", 49, true},
		{"free french", "Livraison gratuite", 0, true},
		{"free english", "Free shipping", 0, true},
		{"no information", "Retrait en magasin", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseShippingFee(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseShippingFee(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got != tt.expected {
				t.Errorf("ParseShippingFee(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseAvailability(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected models.Availability
	}{
		{"in stock french", "En stock", models.AvailabilityInStock},
		{"available english", "Available now", models.AvailabilityInStock},
		{"out of stock", "Out of stock", models.AvailabilityOutOfStock},
		{"rupture", "Rupture de stock", models.AvailabilityOutOfStock},
		{"epuise with accents", "Épuisé", models.AvailabilityOutOfStock},
		{"indisponible", "Indisponible", models.AvailabilityOutOfStock},
		{"hors stock", "Article hors stock", models.AvailabilityOutOfStock},
		// Negative fragments win even when a positive one is present.
		{"negative beats positive", "Produit non disponible", models.AvailabilityOutOfStock},
		{"no match", "Nouveau produit", models.AvailabilityUnknown},
		{"empty", "", models.AvailabilityUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseAvailability(tt.input); got != tt.expected {
				t.Errorf("ParseAvailability(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"title", "Apple iPhone 15 Pro", "apple-iphone-15-pro"},
		{"accents", "Électroménager Premium", "electromenager-premium"},
		{"url path", "/fr/iphone-15-pro.html", "fr-iphone-15-pro"},
		{"full url with query", "https://shop.example.com/iphone-15-pro.html?ref=home#top", "iphone-15-pro"},
		{"underscores", "galaxy_s24_ultra", "galaxy-s24-ultra"},
		{"punctuation runs", "PS5  --  Slim!!", "ps5-slim"},
		{"empty", "", ""},
		{"symbols only", "!?&", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	inputs := []string{
		"Apple iPhone 15 Pro",
		"/fr/iphone-15-pro.html",
		"https://shop.example.com/catalogue/tv-oled-55.php?page=2",
		"galaxy_s24_ultra",
	}
	for _, input := range inputs {
		once := Slugify(input)
		twice := Slugify(once)
		if once != twice {
			t.Errorf("Slugify not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

// A title and the product URL derived from it must land on the same grouping key.
func TestSlugifyCollapsesTitleAndURL(t *testing.T) {
	title := Slugify("iPhone 15 Pro")
	url := Slugify("/iphone-15-pro.html")
	if title != url {
		t.Errorf("title slug %q != url slug %q", title, url)
	}
}
