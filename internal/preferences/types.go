package preferences

// SeedProgram selects the software-update channel the catalog feeds are
// built from.
type SeedProgram string

const (
	SeedNone      SeedProgram = "none"
	SeedDeveloper SeedProgram = "developer"
	SeedPublic    SeedProgram = "public"
	SeedCustomer  SeedProgram = "customer"
)

// ValidSeedProgram reports whether value is a known seed program.
func ValidSeedProgram(value string) bool {
	switch SeedProgram(value) {
	case SeedNone, SeedDeveloper, SeedPublic, SeedCustomer:
		return true
	}
	return false
}

// Preference keys stored in the settings table.
const (
	KeySeedProgram = "seed_program"
	KeyOSFilter    = "os_filter"
	KeyDownloadDir = "download_dir"
)

// Preferences holds the user-adjustable settings the catalog and download
// services read.
type Preferences struct {
	SeedProgram SeedProgram `json:"seedProgram"`
	OSFilter    string      `json:"osFilter"`
	DownloadDir string      `json:"downloadDir"`
}
