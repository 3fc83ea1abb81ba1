package persona

import (
	"context"
	"math/rand/v2"
	"sync"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/faust/internal/features/prefs"
)

type streetLine struct {
	prompt string
	audio  string
}

var streetLines = []streetLine{
	{"지금 이 앱 열면 오늘 목표는 끝이야", "homie_bag_street"},
	{"진짜로 지금 이게 필요한 거 맞아?", "no_cap_street"},
}

// Provider собирает профиль выбранной персоны.
type Provider struct {
	prefs *prefs.Service
	pick  func(n int) int

	mu          sync.Mutex
	ringerKnown bool
	silent      bool
}

// NewProvider создаёт поставщика профилей.
func NewProvider(prefsService *prefs.Service) *Provider {
	return &Provider{prefs: prefsService, pick: rand.IntN}
}

// SetRinger запоминает режим звонка, который сообщает устройство.
func (p *Provider) SetRinger(silent bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ringerKnown = true
	p.silent = silent
}

// Mode: обычный режим - всё, беззвучный или вибро - текст с вибрацией,
// режим неизвестен - только текст.
func (p *Provider) Mode() FeedbackMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ModeFor(p.ringerKnown, p.silent)
}

// ModeFor: чистая версия Mode.
func ModeFor(ringerKnown, silent bool) FeedbackMode {
	switch {
	case !ringerKnown:
		return ModeText
	case silent:
		return ModeTextVibration
	default:
		return ModeAll
	}
}

// CurrentType возвращает сохранённую персону или STREET.
func (p *Provider) CurrentType(ctx context.Context) Type {
	raw, err := p.prefs.PersonaType(ctx)
	if err != nil {
		log.WithError(err).Warn("Не удалось прочитать персону")
		return DefaultType
	}
	t, err := ParseType(raw)
	if err != nil {
		return DefaultType
	}
	return t
}

// SetType сохраняет выбранную персону.
func (p *Provider) SetType(ctx context.Context, t Type) error {
	return p.prefs.SetPersonaType(ctx, string(t))
}

// Profile возвращает профиль для очередного оверлея.
func (p *Provider) Profile(ctx context.Context) Profile {
	return p.build(p.CurrentType(ctx), p.Mode())
}

func (p *Provider) build(t Type, mode FeedbackMode) Profile {
	var prof Profile
	switch t {
	case Calm:
		prof = Profile{
			Prompt:    "잠시 멈추고, 지금 이 순간을 돌아봅니다",
			Vibration: []int64{200, 300, 200},
		}
	case Diplomatic:
		prof = Profile{
			Prompt:    "약속한 사용 시간을 지키는 것이 서로에게 좋습니다",
			Vibration: []int64{150, 100, 150, 100, 150},
		}
	case Comfortable:
		prof = Profile{
			Prompt: "괜찮아요, 오늘은 조금 쉬어가도 돼요",
		}
	default:
		t = Street
		line := streetLines[p.pick(len(streetLines))]
		prof = Profile{
			Prompt:    line.prompt,
			Vibration: []int64{100, 50, 200, 50, 150},
			Audio:     line.audio,
		}
	}
	prof.Type = t
	prof.Mode = mode
	return prof
}
