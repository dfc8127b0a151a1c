package plan

import "github.com/BTreeMap/CareConcierge/internal/models"

// CatalogEntry is a citation from the static allow-listed catalog.
type CatalogEntry struct {
	ID          string
	Title       string
	URL         string
	Source      string
	LastUpdated int // year the page was last reviewed
}

// Citation converts the entry to a models.Citation.
func (e CatalogEntry) Citation() models.Citation {
	return models.Citation{Title: e.Title, URL: e.URL, Source: e.Source}
}

// Catalog holds every citation a plan line may reference, keyed by id.
var Catalog = map[string]CatalogEntry{
	"mayo-fracture":     {"mayo-fracture", "Fractures (broken bones): First aid", "https://www.mayoclinic.org/first-aid/first-aid-fractures/basics/art-20056641", "Mayo Clinic", 2024},
	"aaos-fracture":     {"aaos-fracture", "Fractures (Broken Bones)", "https://orthoinfo.aaos.org/en/diseases--conditions/fractures-broken-bones/", "AAOS OrthoInfo", 2025},
	"mayo-cuts":         {"mayo-cuts", "Cuts and scrapes: First aid", "https://www.mayoclinic.org/first-aid/first-aid-cuts/basics/art-20056711", "Mayo Clinic", 2025},
	"aad-wound":         {"aad-wound", "How to treat a minor cut", "https://www.aad.org/public/everyday-care/injured-skin/burns/treat-minor-cuts", "American Academy of Dermatology", 2025},
	"medline-sprain":    {"medline-sprain", "Sprains and Strains", "https://medlineplus.gov/sprainsandstrains.html", "MedlinePlus", 2025},
	"niams-sprain":      {"niams-sprain", "Sprains and Strains", "https://www.niams.nih.gov/health-topics/sprains-and-strains", "NIAMS", 2023},
	"mayo-burn":         {"mayo-burn", "Burns: First aid", "https://www.mayoclinic.org/first-aid/first-aid-burns/basics/art-20056649", "Mayo Clinic", 2025},
	"redcross-burn":     {"redcross-burn", "Burns first aid", "https://www.redcross.org/take-a-class/resources/learn-first-aid/burns", "American Red Cross", 2024},
	"medline-fever":     {"medline-fever", "Fever", "https://medlineplus.gov/fever.html", "MedlinePlus", 2025},
	"aap-fever":         {"aap-fever", "Fever and Your Baby", "https://www.healthychildren.org/English/health-issues/conditions/fever/Pages/Fever-and-Your-Baby.aspx", "HealthyChildren.org", 2025},
	"aad-rash":          {"aad-rash", "Rash 101 in adults: When to seek medical treatment", "https://www.aad.org/public/everyday-care/when-to-see-a-dermatologist/rash-101", "American Academy of Dermatology", 2025},
	"medline-rash":      {"medline-rash", "Rashes", "https://medlineplus.gov/rashes.html", "MedlinePlus", 2024},
	"medline-firstaid":  {"medline-firstaid", "First Aid", "https://medlineplus.gov/firstaid.html", "MedlinePlus", 2025},
	"cdc-emergency":     {"cdc-emergency", "When to go to the emergency room", "https://www.cdc.gov/nchs/fastats/emergency-department.htm", "CDC", 2025},
	"nhs-urgent":        {"nhs-urgent", "When to go to A&E", "https://www.nhs.uk/nhs-services/urgent-and-emergency-care-services/when-to-go-to-ae/", "NHS", 2024},
	"medline-infection": {"medline-infection", "Wound Infection", "https://medlineplus.gov/woundsandinjuries.html", "MedlinePlus", 2025},
}
