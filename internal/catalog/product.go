package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Catalog mirrors the top level of a software-update catalog property list.
type Catalog struct {
	CatalogVersion int                 `plist:"CatalogVersion"`
	Products       map[string]*Product `plist:"Products"`
}

// Package is one payload listed under a product.
type Package struct {
	URL  string `plist:"URL"`
	Size int64  `plist:"Size"`
}

// InstallAssistantPackageIdentifiers carries the installer metadata that
// distinguishes full-installer products from ordinary update packages.
type InstallAssistantPackageIdentifiers struct {
	OSInstall     string `plist:"OSInstall"`
	SharedSupport string `plist:"SharedSupport"`
}

// ExtendedMetaInfo is optional per-product metadata.
type ExtendedMetaInfo struct {
	InstallAssistantPackageIdentifiers *InstallAssistantPackageIdentifiers `plist:"InstallAssistantPackageIdentifiers"`
}

// Product represents one downloadable installer entry from a catalog feed.
// The plist fields are set during decode; Title, ProductVersion,
// BuildVersion and OSName arrive later from the distribution document and
// are only written through the owning service's mutex.
type Product struct {
	Key              string            `plist:"-" json:"key"`
	PostDate         time.Time         `plist:"PostDate" json:"postDate"`
	Distributions    map[string]string `plist:"Distributions" json:"-"`
	Packages         []Package         `plist:"Packages" json:"-"`
	ExtendedMetaInfo *ExtendedMetaInfo `plist:"ExtendedMetaInfo" json:"-"`

	Title          string `plist:"-" json:"title"`
	ProductVersion string `plist:"-" json:"productVersion"`
	BuildVersion   string `plist:"-" json:"buildVersion"`
	OSName         string `plist:"-" json:"osName"`
}

// IsInstaller reports whether the product carries full-installer metadata.
func (p *Product) IsInstaller() bool {
	return p.ExtendedMetaInfo != nil &&
		p.ExtendedMetaInfo.InstallAssistantPackageIdentifiers != nil &&
		p.ExtendedMetaInfo.InstallAssistantPackageIdentifiers.SharedSupport != ""
}

// InstallerURL returns the URL of the InstallAssistant payload, or "" if
// the product has none.
func (p *Product) InstallerURL() string {
	for _, pkg := range p.Packages {
		if strings.HasSuffix(pkg.URL, "InstallAssistant.pkg") {
			return pkg.URL
		}
	}
	return ""
}

// InstallerSize returns the byte size of the InstallAssistant payload.
func (p *Product) InstallerSize() int64 {
	for _, pkg := range p.Packages {
		if strings.HasSuffix(pkg.URL, "InstallAssistant.pkg") {
			return pkg.Size
		}
	}
	return 0
}

// DistributionURL returns the distribution document for the given language,
// falling back to English.
func (p *Product) DistributionURL(language string) string {
	if url, ok := p.Distributions[language]; ok {
		return url
	}
	if url, ok := p.Distributions["English"]; ok {
		return url
	}
	return p.Distributions["en"]
}

// Filename returns the deterministic destination filename for the product's
// installer package.
func (p *Product) Filename() string {
	version := p.ProductVersion
	if version == "" {
		version = "V"
	}
	build := p.BuildVersion
	if build == "" {
		build = "B"
	}
	return fmt.Sprintf("InstallAssistant-%s-%s.pkg", version, build)
}

var buildVersionRe = regexp.MustCompile(`^(\d+)([A-Za-z])(\d*)`)

// CompareBuilds orders two build version strings like "24F74": numeric
// Darwin major first, then the letter, then the trailing number (missing
// treated as 0). An empty build sorts before any present value; two empty
// builds are equal. Returns -1, 0 or 1.
func CompareBuilds(a, b string) int {
	if a == "" && b == "" {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}

	am := buildVersionRe.FindStringSubmatch(a)
	bm := buildVersionRe.FindStringSubmatch(b)
	if am == nil || bm == nil {
		// Unparseable builds fall back to plain string order.
		return strings.Compare(a, b)
	}

	aMajor, _ := strconv.Atoi(am[1])
	bMajor, _ := strconv.Atoi(bm[1])
	if aMajor != bMajor {
		return cmpInt(aMajor, bMajor)
	}

	if am[2] != bm[2] {
		return strings.Compare(am[2], bm[2])
	}

	aMinor := 0
	if am[3] != "" {
		aMinor, _ = strconv.Atoi(am[3])
	}
	bMinor := 0
	if bm[3] != "" {
		bMinor, _ = strconv.Atoi(bm[3])
	}
	return cmpInt(aMinor, bMinor)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
