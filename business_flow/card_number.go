package businessflow

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/virtuallibrarycard/vlc/app/services"
	"github.com/virtuallibrarycard/vlc/models"
	"github.com/virtuallibrarycard/vlc/repository"
	"github.com/virtuallibrarycard/vlc/utils"
)

// AllowedCharacters is the alphabet for randomly drawn card number suffixes.
const AllowedCharacters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	cardNumbersGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_numbers_generated_total",
			Help: "Total number of card numbers successfully generated",
		},
		[]string{"mode"},
	)

	cardNumberCollisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_number_collisions_total",
			Help: "Card number candidates discarded because the number already existed",
		},
		[]string{"mode"},
	)

	cardNumberRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "card_number_rejections_total",
			Help: "Card number candidates rejected before the uniqueness check",
		},
		[]string{"reason"},
	)

	cardNumberExhaustionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "card_number_exhaustions_total",
			Help: "Generation attempts that ran out of retries without a unique number",
		},
	)

	sequenceAlertsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "card_number_sequence_alerts_total",
			Help: "Admin alerts dispatched because a sequence approached its limit",
		},
	)
)

// CardNumberGenerator assigns a unique number to a library card according to
// the numbering mode of the card's library.
type CardNumberGenerator interface {
	// Assign fills card.Number. A card without a library is left untouched.
	Assign(ctx context.Context, card *models.LibraryCard) error

	// ResetSequence realigns the sequence counter of a library after its
	// start number changed. Only meaningful for sequential libraries.
	ResetSequence(ctx context.Context, library *models.Library) error
}

// CardNumberGeneratorImpl implements both the sequential and the random
// numbering strategies. Card numbers are the library prefix followed by a
// serialized part; prefix plus serialized part is always TotalLength runes.
type CardNumberGeneratorImpl struct {
	libraryRepo     repository.LibraryRepository
	cardRepo        repository.LibraryCardRepository
	sequenceRepo    repository.SequenceRepository
	patronRepo      repository.PatronRepository
	censor          *services.Censor
	notificationSvc services.NotificationService
	db              *gorm.DB
	logger          zerolog.Logger

	// TotalLength is the full card number length, prefix included.
	TotalLength int
	// MinRandomLength is the minimum serialized length in random mode.
	MinRandomLength int
	// Retries bounds the number of candidate draws per card.
	Retries int
	// AlertThreshold is the distance from the start number at which admins
	// are alerted that the sequence is running out.
	AlertThreshold int64
	// BurnOnCollision commits counter advances even when the drawn value
	// collides with an existing number, so a collided value is never
	// re-issued. When false the whole draw loop runs in one transaction
	// and a failed assignment rolls the counter back.
	BurnOnCollision bool
	// RandomDigitsOnly restricts the random alphabet to 0-9.
	RandomDigitsOnly bool

	mu   sync.Mutex
	rand *rand.Rand
}

// NewCardNumberGenerator creates a generator with production defaults.
func NewCardNumberGenerator(
	libraryRepo repository.LibraryRepository,
	cardRepo repository.LibraryCardRepository,
	sequenceRepo repository.SequenceRepository,
	patronRepo repository.PatronRepository,
	censor *services.Censor,
	notificationSvc services.NotificationService,
	db *gorm.DB,
	logger zerolog.Logger,
) *CardNumberGeneratorImpl {
	var seed [8]byte
	_, _ = crand.Read(seed[:])

	return &CardNumberGeneratorImpl{
		libraryRepo:     libraryRepo,
		cardRepo:        cardRepo,
		sequenceRepo:    sequenceRepo,
		patronRepo:      patronRepo,
		censor:          censor,
		notificationSvc: notificationSvc,
		db:              db,
		logger:          logger.With().Str("component", "card_number").Logger(),
		TotalLength:     utils.CardNumberTotalLength,
		MinRandomLength: utils.MinRandomLength,
		Retries:         utils.NumberGenerationRetries,
		AlertThreshold:  utils.CardNumbersAlertThreshold,
		BurnOnCollision: true,
		rand:            rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:])))),
	}
}

// Assign generates and sets a unique number on the card. The card record is
// not persisted; callers save it inside their own transaction so the
// composite unique index on (library_id, number) backstops concurrent racers.
func (g *CardNumberGeneratorImpl) Assign(ctx context.Context, card *models.LibraryCard) error {
	library, err := g.resolveLibrary(ctx, card)
	if err != nil {
		return err
	}
	if library == nil {
		// Cards can exist without a library; they keep an empty number.
		return nil
	}

	serializedLength := g.TotalLength - len(library.Prefix)

	if library.IsSequential() {
		return g.assignFromSequence(ctx, card, library, serializedLength)
	}
	return g.assignRandom(ctx, card, library, serializedLength)
}

func (g *CardNumberGeneratorImpl) resolveLibrary(ctx context.Context, card *models.LibraryCard) (*models.Library, error) {
	if card.Library != nil {
		return card.Library, nil
	}
	if card.LibraryID == nil {
		return nil, nil
	}
	library, err := g.libraryRepo.ByID(ctx, *card.LibraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load library %d: %w", *card.LibraryID, err)
	}
	if library == nil {
		return nil, ErrLibraryNotFound
	}
	return library, nil
}

func (g *CardNumberGeneratorImpl) assignFromSequence(ctx context.Context, card *models.LibraryCard, library *models.Library, serializedLength int) error {
	if serializedLength < 1 {
		return ErrPrefixTooLong
	}

	draw := func(ctx context.Context) error {
		var lastCandidate string
		for attempt := 0; attempt < g.Retries; attempt++ {
			value, err := g.nextSequenceValue(ctx, library)
			if err != nil {
				return err
			}

			candidate := library.Prefix + fmt.Sprintf("%0*d", serializedLength, value)
			lastCandidate = candidate

			exists, err := g.cardRepo.NumberExists(ctx, library.ID, candidate)
			if err != nil {
				return err
			}
			if exists {
				cardNumberCollisionsTotal.WithLabelValues(models.NumberingModeSequence).Inc()
				g.logger.Warn().
					Str("library", library.Identifier).
					Str("candidate", candidate).
					Int("attempt", attempt+1).
					Msg("sequential card number collision")
				continue
			}

			card.Number = candidate
			cardNumbersGeneratedTotal.WithLabelValues(models.NumberingModeSequence).Inc()
			return nil
		}

		cardNumberExhaustionsTotal.Inc()
		g.logger.Error().
			Str("library", library.Identifier).
			Str("last_candidate", lastCandidate).
			Int("retries", g.Retries).
			Msg("exhausted retries generating sequential card number")
		return ErrCardNumberExhausted
	}

	if g.BurnOnCollision {
		// Draws run outside any enclosing transaction so collided counter
		// values stay consumed even when the assignment ultimately fails.
		return draw(repository.WithoutTransaction(ctx))
	}
	return repository.WithTransaction(ctx, g.db, draw)
}

// nextSequenceValue advances the library's counter and maps the raw value
// into the library's numbering space: descending libraries count down from
// the start number, bounded descending libraries count down from the end.
// The first draw in every mode yields the start number itself; a descending
// series continues S-1, S-2 from the second draw.
func (g *CardNumberGeneratorImpl) nextSequenceValue(ctx context.Context, library *models.Library) (int64, error) {
	name := models.CardNumberSequenceName(library)

	value, err := g.sequenceRepo.NextValue(ctx, name, sequenceInitValue(library), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %q: %w", name, err)
	}

	if library.IsDescending() {
		value = library.SequenceStartNumber - value
		if library.SequenceEndNumber != nil {
			value += *library.SequenceEndNumber
		}
	}

	distance := value - library.SequenceStartNumber
	if distance < 0 {
		distance = -distance
	}
	if distance >= g.AlertThreshold {
		g.sendSequenceAlert(ctx, library)
	}

	return value, nil
}

func (g *CardNumberGeneratorImpl) sendSequenceAlert(ctx context.Context, library *models.Library) {
	admins, err := g.patronRepo.ListLibraryAdmins(ctx, library.ID)
	if err != nil {
		g.logger.Error().Err(err).Str("library", library.Identifier).Msg("send_admin_card_numbers_alert error")
		return
	}
	supers, err := g.patronRepo.ListSuperusers(ctx)
	if err != nil {
		g.logger.Error().Err(err).Str("library", library.Identifier).Msg("send_admin_card_numbers_alert error")
		return
	}
	if err := g.notificationSvc.SendAdminCardNumbersAlert(library, admins, supers); err != nil {
		g.logger.Error().Err(err).Str("library", library.Identifier).Msg("send_admin_card_numbers_alert error")
		return
	}
	sequenceAlertsTotal.Inc()
}

// ResetSequence realigns the counter after admins changed the start number.
// Moving the start of an ascending sequence forward fast-forwards the counter
// by discarding values; any other change reseeds the counter at the new
// initial value on its next draw.
func (g *CardNumberGeneratorImpl) ResetSequence(ctx context.Context, library *models.Library) error {
	name := models.CardNumberSequenceName(library)

	return repository.WithTransaction(ctx, g.db, func(txCtx context.Context) error {
		lastValue, err := g.sequenceRepo.LastValue(txCtx, name)
		if err != nil {
			return fmt.Errorf("failed to read sequence %q: %w", name, err)
		}
		if lastValue == nil {
			// No card was ever issued from this sequence.
			return nil
		}

		if !library.IsDescending() && *lastValue < library.SequenceStartNumber {
			current := *lastValue
			for current < library.SequenceStartNumber {
				current, err = g.sequenceRepo.NextValue(txCtx, name, 1, nil)
				if err != nil {
					return fmt.Errorf("failed to fast-forward sequence %q: %w", name, err)
				}
			}
			return nil
		}

		// Reseeding trick: a reset value equal to the last value forces the
		// next draw to wrap around to the initial value immediately.
		if _, err := g.sequenceRepo.NextValue(txCtx, name, sequenceInitValue(library), lastValue); err != nil {
			return fmt.Errorf("failed to reseed sequence %q: %w", name, err)
		}
		return nil
	})
}

func sequenceInitValue(library *models.Library) int64 {
	if library.IsDescending() {
		if library.SequenceEndNumber != nil {
			return *library.SequenceEndNumber
		}
		return 0
	}
	return library.SequenceStartNumber
}

func (g *CardNumberGeneratorImpl) assignRandom(ctx context.Context, card *models.LibraryCard, library *models.Library, serializedLength int) error {
	if serializedLength < g.MinRandomLength {
		return ErrPrefixTooLong
	}

	alphabet := AllowedCharacters
	if g.RandomDigitsOnly {
		alphabet = AllowedCharacters[:10]
	}

	var lastCandidate string
	for attempt := 0; attempt < g.Retries; attempt++ {
		candidate := library.Prefix + g.randomChars(alphabet, serializedLength)
		lastCandidate = candidate

		if g.censor != nil && g.censor.ContainsProfanity(candidate) {
			cardNumberRejectionsTotal.WithLabelValues("profanity").Inc()
			g.logger.Warn().
				Str("library", library.Identifier).
				Int("attempt", attempt+1).
				Msg("random card number rejected by censor")
			continue
		}

		exists, err := g.cardRepo.NumberExists(ctx, library.ID, candidate)
		if err != nil {
			return err
		}
		if exists {
			cardNumberCollisionsTotal.WithLabelValues(models.NumberingModeRandom).Inc()
			continue
		}

		card.Number = candidate
		cardNumbersGeneratedTotal.WithLabelValues(models.NumberingModeRandom).Inc()
		return nil
	}

	cardNumberExhaustionsTotal.Inc()
	g.logger.Error().
		Str("library", library.Identifier).
		Str("last_candidate", lastCandidate).
		Int("retries", g.Retries).
		Msg("exhausted retries generating random card number")
	return ErrCardNumberExhausted
}

func (g *CardNumberGeneratorImpl) randomChars(alphabet string, n int) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[g.rand.Intn(len(alphabet))]
	}
	return string(buf)
}
