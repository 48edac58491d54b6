package generate

import (
	"context"
	"math/rand"

	"github.com/dawnloop/gmbot/internal/persona"
	"github.com/dawnloop/gmbot/internal/platform"
	"github.com/dawnloop/gmbot/internal/replyctx"
)

// pool is [weekday, weekend] reply options for one part of day.
type pool struct {
	weekday []string
	weekend []string
}

// fallbacks holds the handcrafted per-language reply pools. Unknown part
// of day falls back to morning; unknown language falls back to English.
var fallbacks = map[string]map[replyctx.PartOfDay]pool{
	"en": {
		replyctx.Morning: {
			weekday: []string{"New day, new wins.", "Momentum starts now.", "Let's make moves.", "Rise and grind."},
			weekend: []string{"Easy pace today.", "Weekend vibes.", "Fresh start weekend.", "Enjoy the day."},
		},
		replyctx.Night: {
			weekday: []string{"Reset for tomorrow.", "Rest up, champion.", "Prep for wins.", "Sleep well."},
			weekend: []string{"Unwind well.", "Recharge time.", "Weekend rest.", "Peaceful night."},
		},
	},
	"es": {
		replyctx.Morning: {
			weekday: []string{"Nuevo día, nuevas metas.", "A por el día.", "Vamos con todo.", "Buenos días."},
			weekend: []string{"Fin de semana genial.", "Relájate y disfruta.", "Buenos días.", "Tiempo libre."},
		},
		replyctx.Night: {
			weekday: []string{"Descansar bien.", "Preparar mañana.", "Buenas noches.", "A recargar."},
			weekend: []string{"Relajarse bien.", "Noche tranquila.", "Buen descanso.", "Buenas noches."},
		},
	},
	"pt": {
		replyctx.Morning: {
			weekday: []string{"Novo dia, novas metas.", "Vamos em frente.", "Bom dia!", "Energia total."},
			weekend: []string{"Fim de semana bom.", "Relaxar e curtir.", "Bom dia!", "Tempo livre."},
		},
		replyctx.Night: {
			weekday: []string{"Descansar bem.", "Preparar amanhã.", "Boa noite!", "Recarregar."},
			weekend: []string{"Relaxar bem.", "Noite tranquila.", "Boa noite!", "Bom descanso."},
		},
	},
	"fr": {
		replyctx.Morning: {
			weekday: []string{"Nouveau jour, nouveaux buts.", "Allons-y!", "Bonjour!", "Énergie positive."},
			weekend: []string{"Bon week-end.", "Détente et plaisir.", "Bonjour!", "Temps libre."},
		},
		replyctx.Night: {
			weekday: []string{"Bien se reposer.", "Préparer demain.", "Bonne nuit!", "Recharger."},
			weekend: []string{"Bien se détendre.", "Nuit paisible.", "Bonne nuit!", "Bon repos."},
		},
	},
	"de": {
		replyctx.Morning: {
			weekday: []string{"Neuer Tag, neue Ziele.", "Los geht's!", "Guten Morgen!", "Volle Energie."},
			weekend: []string{"Schönes Wochenende.", "Entspannen und genießen.", "Guten Morgen!", "Freie Zeit."},
		},
		replyctx.Night: {
			weekday: []string{"Gut ausruhen.", "Morgen vorbereiten.", "Gute Nacht!", "Aufladen."},
			weekend: []string{"Gut entspannen.", "Ruhige Nacht.", "Gute Nacht!", "Gute Erholung."},
		},
	},
	"it": {
		replyctx.Morning: {
			weekday: []string{"Nuovo giorno, nuovi obiettivi.", "Andiamo!", "Buongiorno!", "Energia piena."},
			weekend: []string{"Buon weekend.", "Rilassarsi e divertirsi.", "Buongiorno!", "Tempo libero."},
		},
		replyctx.Night: {
			weekday: []string{"Riposare bene.", "Preparare domani.", "Buonanotte!", "Ricaricare."},
			weekend: []string{"Rilassarsi bene.", "Notte tranquilla.", "Buonanotte!", "Buon riposo."},
		},
	},
}

// TemplateGenerator picks replies from fixed per-language pools. It is the
// offline path: no network, reproducible given a seed, used when the model
// is disabled and in tests.
type TemplateGenerator struct {
	rng *rand.Rand
}

// NewTemplateGenerator creates a template generator seeded for
// reproducible selection.
func NewTemplateGenerator(seed int64) *TemplateGenerator {
	return &TemplateGenerator{rng: rand.New(rand.NewSource(seed))}
}

var _ Generator = (*TemplateGenerator)(nil)

// Generate implements Generator. The persona is unused here: template
// pools predate the persona presets and stay neutral.
func (g *TemplateGenerator) Generate(_ context.Context, _ platform.Candidate, rc replyctx.Context, _ persona.Persona) Result {
	langPools, ok := fallbacks[rc.Language]
	if !ok {
		langPools = fallbacks["en"]
	}

	part := rc.PartOfDay
	if part == replyctx.Unknown {
		part = replyctx.Morning
	}

	p := langPools[part]
	options := p.weekday
	if rc.IsWeekend {
		options = p.weekend
	}

	return Result{
		Text:       options[g.rng.Intn(len(options))],
		TemplateID: "tpl:v1",
	}
}
