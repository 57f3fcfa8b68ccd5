package services

import (
	"context"
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wenlng/go-captcha/v2/rotate"
)

// CaptchaService gates the public signup form with a rotate captcha
// (go-captcha rotate mode). Generate returns a challenge ID plus two base64
// images; the frontend submits the rotation angle the patron applied and the
// signup handler verifies it before any patron row is created.
type CaptchaService interface {
	Generate(ctx context.Context) (*RotateChallenge, error)
	Verify(ctx context.Context, challengeID string, userAngle float64) bool
}

type RotateChallenge struct {
	ID                string
	MasterImageBase64 string
	ThumbImageBase64  string
}

// ChallengeStore holds pending captcha challenges with a TTL. Challenges are
// consumed on verification, pass or fail.
type ChallengeStore interface {
	Put(ctx context.Context, id string, targetAngle int) error
	Take(ctx context.Context, id string) (int, bool)
}

type captchaServiceImpl struct {
	rotator rotate.Captcha
	store   ChallengeStore
	padding int // tolerance in degrees for angle validation
}

// NewCaptchaService constructs a CaptchaService using rotate mode.
func NewCaptchaService(store ChallengeStore, padding, imgSizePx int) (CaptchaService, error) {
	if imgSizePx <= 0 {
		imgSizePx = 220
	}

	builder := rotate.NewBuilder(
		rotate.WithImageSquareSize(imgSizePx),
	)
	builder.SetResources(
		rotate.WithImages(generateRotateBackgrounds(3, imgSizePx)),
	)

	return &captchaServiceImpl{
		rotator: builder.Make(),
		store:   store,
		padding: padding,
	}, nil
}

func (s *captchaServiceImpl) Generate(ctx context.Context) (*RotateChallenge, error) {
	captData, err := s.rotator.Generate()
	if err != nil {
		return nil, err
	}
	block := captData.GetData()

	masterB64, err := captData.GetMasterImage().ToBase64()
	if err != nil {
		return nil, err
	}
	thumbB64, err := captData.GetThumbImage().ToBase64()
	if err != nil {
		return nil, err
	}

	challengeID := uuid.New().String()
	if err := s.store.Put(ctx, challengeID, block.Angle); err != nil {
		return nil, err
	}

	return &RotateChallenge{
		ID:                challengeID,
		MasterImageBase64: masterB64,
		ThumbImageBase64:  thumbB64,
	}, nil
}

func (s *captchaServiceImpl) Verify(ctx context.Context, challengeID string, userAngle float64) bool {
	target, ok := s.store.Take(ctx, challengeID)
	if !ok {
		return false
	}
	return rotate.Validate(int(math.Round(userAngle)), target, s.padding)
}

// MemoryChallengeStore is the in-process ChallengeStore used in tests and
// single-instance deployments.
type MemoryChallengeStore struct {
	mu  sync.Mutex
	m   map[string]memoryChallenge
	ttl time.Duration
}

type memoryChallenge struct {
	angle     int
	expiresAt time.Time
}

// NewMemoryChallengeStore creates an in-memory store with the given TTL
func NewMemoryChallengeStore(ttl time.Duration) *MemoryChallengeStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &MemoryChallengeStore{
		m:   make(map[string]memoryChallenge),
		ttl: ttl,
	}
}

func (s *MemoryChallengeStore) Put(_ context.Context, id string, targetAngle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	// opportunistic cleanup of expired entries
	for k, v := range s.m {
		if now.After(v.expiresAt) {
			delete(s.m, k)
		}
	}
	s.m[id] = memoryChallenge{angle: targetAngle, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryChallengeStore) Take(_ context.Context, id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	delete(s.m, id)
	if !ok || time.Now().After(e.expiresAt) {
		return 0, false
	}
	return e.angle, true
}

// generateRotateBackgrounds builds simple gradient backgrounds so the rotate
// captcha does not require shipping image assets.
func generateRotateBackgrounds(n, size int) []image.Image {
	if n <= 0 {
		n = 1
	}
	imgs := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		imgs = append(imgs, newNoiseGradientImage(size, size))
	}
	return imgs
}

func newNoiseGradientImage(w, h int) image.Image {
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x - w/2)
			dy := float64(y - h/2)
			t := math.Sqrt(dx*dx+dy*dy) / float64(w/2)
			if t > 1 {
				t = 1
			}
			base := uint8(200 - int(150*t))
			noise := uint8(rand.Intn(30))
			rgba.Set(x, y, color.RGBA{R: base + noise/3, G: base, B: 255 - base/2, A: 255})
		}
	}
	return rgba
}
