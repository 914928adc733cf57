// File path: internal/discovery/domains.go
package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DomainTable maps a normalized manufacturer name to the web domains its
// datasheets are published under. The table is closed: it is loaded once at
// startup and never inferred at runtime.
type DomainTable map[string][]string

// Lookup returns the known domains for a manufacturer name, or nil.
func (t DomainTable) Lookup(manufacturer string) []string {
	if len(t) == 0 {
		return nil
	}
	key := normalizeName(manufacturer)
	if key == "" {
		return nil
	}
	return t[key]
}

// defaultDomainTable covers the manufacturers that appear in residential
// solar BOMs. Projects with other vendors extend it via a config file.
var defaultDomainTable = DomainTable{
	"enphase":          {"enphase.com"},
	"enphase energy":   {"enphase.com"},
	"solaredge":        {"solaredge.com"},
	"panasonic":        {"panasonic.com", "na.panasonic.com"},
	"qcells":           {"qcells.com"},
	"q cells":          {"qcells.com"},
	"hanwha qcells":    {"qcells.com"},
	"rec":              {"recgroup.com"},
	"rec group":        {"recgroup.com"},
	"jinko":            {"jinkosolar.com"},
	"jinkosolar":       {"jinkosolar.com"},
	"longi":            {"longi.com"},
	"canadian solar":   {"canadiansolar.com"},
	"trina":            {"trinasolar.com"},
	"trina solar":      {"trinasolar.com"},
	"ironridge":        {"ironridge.com"},
	"unirac":           {"unirac.com"},
	"snapnrack":        {"snapnrack.com"},
	"tesla":            {"tesla.com"},
	"sma":              {"sma-america.com", "sma.de"},
	"fronius":          {"fronius.com"},
	"generac":          {"generac.com"},
	"square d":         {"se.com"},
	"schneider":        {"se.com"},
	"eaton":            {"eaton.com"},
	"siemens":          {"usa.siemens.com", "siemens.com"},
	"milbank":          {"milbankworks.com"},
	"soladeck":         {"soladeck.com"},
	"ilsco":            {"ilsco.com"},
	"burndy":           {"burndy.com"},
	"midnite":          {"midnitesolar.com"},
	"midnite solar":    {"midnitesolar.com"},
	"outback":          {"outbackpower.com"},
	"outback power":    {"outbackpower.com"},
	"morningstar":      {"morningstarcorp.com"},
	"aps":              {"apsystems.com"},
	"apsystems":        {"apsystems.com"},
	"hoymiles":         {"hoymiles.com"},
	"chint":            {"chintpowersystems.com"},
	"staubli":          {"staubli.com"},
	"mc4":              {"staubli.com"},
	"wiley":            {"wiley.com"},
	"tamarack":         {"tamaracksolar.com"},
	"prosolar":         {"prosolar.com"},
	"quick mount":      {"quickmountpv.com"},
	"quick mount pv":   {"quickmountpv.com"},
	"s-5":              {"s-5.com"},
	"ecofasten":        {"ecofasten.com"},
	"pegasus":          {"pegasussolar.com"},
	"rab":              {"rab.com"},
	"southwire":        {"southwire.com"},
	"encore wire":      {"encorewire.com"},
	"cerro":            {"cerrowire.com"},
	"cerrowire":        {"cerrowire.com"},
	"littelfuse":       {"littelfuse.com"},
	"bussmann":         {"eaton.com"},
	"mersen":           {"ep-us.mersen.com", "mersen.com"},
	"abb":              {"abb.com"},
	"ge":               {"geindustrial.com"},
	"leviton":          {"leviton.com"},
	"hubbell":          {"hubbell.com"},
	"intermatic":       {"intermatic.com"},
	"delta":            {"deltaww.com"},
	"solar bos":        {"solarbos.com"},
	"solarbos":         {"solarbos.com"},
	"ironclad":         {"ironcladsupply.com"},
	"wiremold":         {"legrand.us"},
	"legrand":          {"legrand.us"},
	"franklin":         {"franklinwh.com"},
	"franklinwh":       {"franklinwh.com"},
	"lg":               {"lg.com", "lgessbattery.com"},
	"lg chem":          {"lgessbattery.com"},
	"byd":              {"byd.com"},
	"pylontech":        {"pylontech.com.cn"},
	"simpliphi":        {"simpliphipower.com"},
	"enphase ensemble": {"enphase.com"},
}

// categoryKeywords maps normalized BOM categories to the query phrase used
// for tier 1 searches. Categories outside the table fall back to the raw
// category text or a generic phrase.
var categoryKeywords = map[string]string{
	"solar panel":   "solar panel datasheet PDF",
	"module":        "solar module datasheet PDF",
	"pv module":     "solar module datasheet PDF",
	"microinverter": "microinverter datasheet PDF",
	"inverter":      "inverter datasheet PDF",
	"optimizer":     "power optimizer datasheet PDF",
	"battery":       "battery storage datasheet PDF",
	"racking":       "racking system datasheet PDF",
	"rail":          "mounting rail datasheet PDF",
	"mount":         "roof mount datasheet PDF",
	"flashing":      "roof flashing datasheet PDF",
	"combiner":      "combiner box datasheet PDF",
	"disconnect":    "disconnect switch datasheet PDF",
	"breaker":       "circuit breaker datasheet PDF",
	"load center":   "load center datasheet PDF",
	"meter":         "meter socket datasheet PDF",
	"wire":          "building wire specification PDF",
	"cable":         "cable specification PDF",
	"conduit":       "conduit specification PDF",
	"junction box":  "junction box datasheet PDF",
	"fuse":          "fuse datasheet PDF",
	"grounding":     "grounding lug datasheet PDF",
	"monitor":       "monitoring gateway datasheet PDF",
	"gateway":       "monitoring gateway datasheet PDF",
}

// catalogSignals are URL/title substrings that mark a multi-product catalog
// or marketing document rather than a single-part datasheet.
var catalogSignals = []string{
	"catalog",
	"catalogue",
	"brochure",
	"price-list",
	"pricelist",
	"product-guide",
	"product-overview",
	"full-line",
	"lookbook",
	"portfolio",
	"buyers-guide",
}

// excludedDomains are general marketplaces and aggregators whose hits are
// never a manufacturer datasheet.
var excludedDomains = []string{
	"amazon.com",
	"ebay.com",
	"alibaba.com",
	"aliexpress.com",
	"walmart.com",
	"homedepot.com",
	"lowes.com",
	"wholesalesolar.com",
	"solaris-shop.com",
	"scribd.com",
	"pinterest.com",
}

// LoadDomainTable returns the built-in table, optionally extended by the
// JSON file named in PERMITPACK_DOMAIN_TABLE. File entries win on conflict.
func LoadDomainTable() (DomainTable, error) {
	table := make(DomainTable, len(defaultDomainTable))
	for name, domains := range defaultDomainTable {
		table[name] = append([]string(nil), domains...)
	}
	path := strings.TrimSpace(os.Getenv("PERMITPACK_DOMAIN_TABLE"))
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read domain table: %w", err)
	}
	var extra map[string][]string
	if err := json.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("parse domain table: %w", err)
	}
	for name, domains := range extra {
		key := normalizeName(name)
		if key == "" || len(domains) == 0 {
			continue
		}
		table[key] = append([]string(nil), domains...)
	}
	return table, nil
}

func normalizeName(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}
