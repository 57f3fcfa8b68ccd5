package testing

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestLibrary creates a library with random-mode numbering and the
// given prefix. Override fields on the returned struct and Save for variants.
func (tf *TestFixtures) CreateTestLibrary(prefix string) (*models.Library, error) {
	library := &models.Library{
		UUID:                     uuid.New(),
		Name:                     fmt.Sprintf("Test Library %s", prefix),
		Identifier:               fmt.Sprintf("test-%s-%d", prefix, rand.Intn(100000)),
		Prefix:                   prefix,
		NumberingMode:            models.NumberingModeRandom,
		PatronAddressMandatory:   utils.ToPtr(false),
		AgeVerificationMandatory: utils.ToPtr(false),
		BarcodeText:              "barcode",
		PinText:                  "pin",
	}
	if err := tf.DB.DB.Create(library).Error; err != nil {
		return nil, fmt.Errorf("failed to create test library: %w", err)
	}
	return library, nil
}

// CreateSequentialLibrary creates a library using sequential numbering
func (tf *TestFixtures) CreateSequentialLibrary(prefix string, start int64, end *int64, descending bool) (*models.Library, error) {
	library := &models.Library{
		UUID:                     uuid.New(),
		Name:                     fmt.Sprintf("Sequential Library %s", prefix),
		Identifier:               fmt.Sprintf("seq-%s-%d", prefix, rand.Intn(100000)),
		Prefix:                   prefix,
		NumberingMode:            models.NumberingModeSequence,
		SequenceStartNumber:      start,
		SequenceEndNumber:        end,
		SequenceDown:             utils.ToPtr(descending),
		PatronAddressMandatory:   utils.ToPtr(false),
		AgeVerificationMandatory: utils.ToPtr(false),
		BarcodeText:              "barcode",
		PinText:                  "pin",
	}
	if err := tf.DB.DB.Create(library).Error; err != nil {
		return nil, fmt.Errorf("failed to create sequential test library: %w", err)
	}
	return library, nil
}

// CreateTestPatron creates a verified patron belonging to the given library.
// The password (and therefore the PATRONAPI PIN) is "TestPass123!".
func (tf *TestFixtures) CreateTestPatron(library *models.Library) (*models.Patron, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("TestPass123!"), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	patron := &models.Patron{
		Email:         fmt.Sprintf("patron-%d@example.com", rand.Intn(10000000)),
		PasswordHash:  string(hashedPassword),
		FirstName:     "Jane",
		LastName:      utils.ToPtr("Reader"),
		CountryCode:   "US",
		LibraryID:     library.ID,
		Over13:        utils.ToPtr(true),
		EmailVerified: utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(patron).Error; err != nil {
		return nil, fmt.Errorf("failed to create test patron: %w", err)
	}
	return patron, nil
}

// CreateStaffPatron creates a patron with staff rights for admin endpoints
func (tf *TestFixtures) CreateStaffPatron(library *models.Library) (*models.Patron, error) {
	patron, err := tf.CreateTestPatron(library)
	if err != nil {
		return nil, err
	}
	patron.IsStaff = utils.ToPtr(true)
	if err := tf.DB.DB.Save(patron).Error; err != nil {
		return nil, fmt.Errorf("failed to promote test patron: %w", err)
	}
	return patron, nil
}

// CreateTestCard creates an active card with an explicit number
func (tf *TestFixtures) CreateTestCard(patron *models.Patron, library *models.Library, number string) (*models.LibraryCard, error) {
	card := &models.LibraryCard{
		Number:   number,
		PatronID: patron.ID,
	}
	if library != nil {
		card.LibraryID = &library.ID
	}
	if err := tf.DB.DB.Create(card).Error; err != nil {
		return nil, fmt.Errorf("failed to create test card: %w", err)
	}
	return card, nil
}

// CreateStateHierarchy creates a country, a state under it, and a city under
// the state, returning the three places in that order.
func (tf *TestFixtures) CreateStateHierarchy(stateAbbr, stateName, cityName string) (*models.Place, *models.Place, *models.Place, error) {
	country := &models.Place{
		Name:         "United States",
		Type:         models.PlaceTypeCountry,
		Abbreviation: utils.ToPtr("US"),
	}
	if err := tf.DB.DB.Create(country).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create country: %w", err)
	}

	state := &models.Place{
		Name:         stateName,
		Type:         models.PlaceTypeState,
		Abbreviation: utils.ToPtr(stateAbbr),
		ParentID:     &country.ID,
	}
	if err := tf.DB.DB.Create(state).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create state: %w", err)
	}

	city := &models.Place{
		Name:     cityName,
		Type:     models.PlaceTypeCity,
		ParentID: &state.ID,
	}
	if err := tf.DB.DB.Create(city).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create city: %w", err)
	}

	return country, state, city, nil
}

// LinkLibraryToPlace records that a library serves a place
func (tf *TestFixtures) LinkLibraryToPlace(library *models.Library, place *models.Place) error {
	link := &models.LibraryPlace{LibraryID: library.ID, PlaceID: place.ID}
	if err := tf.DB.DB.Create(link).Error; err != nil {
		return fmt.Errorf("failed to link library to place: %w", err)
	}
	return nil
}
