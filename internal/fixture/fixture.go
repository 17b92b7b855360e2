// Package fixture serves a small imitation of the product data site, with one
// identifier for every way a lookup can end. It backs the end to end tests and
// the local dev server.
package fixture

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	// Found has a product page with a data sheet link.
	Found = "3283950912914"
	// FoundBoth has a product page with a data sheet and a safety sheet link.
	FoundBoth = "4006040000010"
	// FoundWithoutSheet has a product page without any document link.
	FoundWithoutSheet = "4444444444444"
	// NoResult shows the no-results message.
	NoResult = "0000000000000"
	// ChangedLayout shows the results marker without the result container.
	ChangedLayout = "2222222222222"
	// Maintenance shows neither marker.
	Maintenance = "9999999999999"
)

// Identifiers lists every identifier the fixture knows about, in a stable order.
func Identifiers() []string {
	return []string{Found, FoundBoth, FoundWithoutSheet, NoResult, ChangedLayout, Maintenance}
}

const searchPage = `<!DOCTYPE html>
<html><head><title>Produktsuche</title></head><body>
<form action="/suche/" method="get">
	<input type="hidden" name="lang" value="de">
	<input type="text" id="suche" name="q" placeholder="GTIN">
	<input type="submit" value="Suchen">
</form>
</body></html>`

const productPage = `<!DOCTYPE html>
<html><head><meta name="title" content="%s"></head><body>
<div class="produkt">
	<div class="dval">
		<div class="div_tval mid_1188"><b class="tv_name">Inverkehrbringer:</b><span> %s </span></div>
	</div>
	%s
</div>
</body></html>`

const noResultPage = `<!DOCTYPE html>
<html><body><p class="keine_treffer">Es wurden leider keine
	Produkte gefunden.</p></body></html>`

const changedLayoutPage = `<!DOCTYPE html>
<html><body><div class="produkt"><p>Neues Layout</p></div></body></html>`

const maintenancePage = `<!DOCTYPE html>
<html><body><p>Wartungsarbeiten, bitte versuchen Sie es später.</p></body></html>`

func product(title, party string, links ...string) string {
	return fmt.Sprintf(productPage, title, party, strings.Join(links, "\n\t"))
}

// ResultPage returns the page shown after searching for query.
func ResultPage(query string) string {
	switch query {
	case Found:
		return product("Bio Hafermilch 1l", "Oatly AB, Malmö",
			`<a href="/dl/etikett.pdf">Etikett</a>`,
			`<a href="/dl/3283950912914.pdf">pdf-Datenblatt</a>`,
			`<a href="/dl/3283950912914-en.pdf">pdf-Datenblatt (EN)</a>`,
		)
	case FoundBoth:
		return product("Spülmittel Zitrone", "Frosch GmbH",
			`<a href="/dl/4006040000010.pdf">pdf-Datenblatt</a>`,
			`<a href="/dl/4006040000010-sdb.pdf">Sicherheits&shy;datenblatt</a>`,
		)
	case FoundWithoutSheet:
		return product("Tofu natur", "Taifun-Tofu GmbH")
	case NoResult:
		return noResultPage
	case ChangedLayout:
		return changedLayoutPage
	}
	return maintenancePage
}

// Handler serves the search page on / and results on /suche/.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("content-type", "text/html; charset=utf-8")
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/suche/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/html; charset=utf-8")
		fmt.Fprint(w, ResultPage(strings.TrimSpace(r.URL.Query().Get("q"))))
	})
	mux.HandleFunc("/dl/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/pdf")
		w.Write([]byte("%PDF-1.4\n"))
	})
	return mux
}
