package wizard

import (
	"time"

	"vtokiosk/internal/domain"
	"vtokiosk/internal/i18n"
)

// Status rotation periods while a result is loading.
const (
	WardrobeStatusInterval = 2500 * time.Millisecond
	ConsultStatusInterval  = 3 * time.Second
)

var statusMessages = map[domain.Flow]map[string][]string{
	domain.FlowWardrobe: {
		i18n.English: {
			"Analyzing silhouette...",
			"Extracting fabric texture...",
			"Simulating drape & flow...",
			"Stitching design to body...",
			"Finalizing your look...",
		},
		i18n.Malay: {
			"Menganalisis siluet...",
			"Mengekstrak tekstur fabrik...",
			"Mensimulasikan jatuhan kain...",
			"Menjahit reka bentuk ke badan...",
			"Memuktamadkan penampilan anda...",
		},
	},
	domain.FlowGrooming: {
		i18n.English: {
			"Analyzing facial geometry...",
			"Consulting style database...",
			"Synthesizing hair strands...",
			"Applying professional lighting...",
			"Finalizing style collage...",
		},
		i18n.Malay: {
			"Menganalisis geometri wajah...",
			"Merujuk pangkalan data gaya...",
			"Mensintesis helaian rambut...",
			"Menerapkan pencahayaan profesional...",
			"Memuktamadkan kolaj gaya...",
		},
	},
	domain.FlowGlam: {
		i18n.English: {
			"Analyzing facial features...",
			"Mapping skin tones...",
			"Consulting makeup database...",
			"Synthesizing digital pigments...",
			"Applying professional lighting...",
			"Finalizing your look...",
		},
		i18n.Malay: {
			"Menganalisis ciri wajah...",
			"Memetakan ton kulit...",
			"Merujuk pangkalan data solekan...",
			"Mensintesis pigmen digital...",
			"Menerapkan pencahayaan profesional...",
			"Memuktamadkan penampilan anda...",
		},
	},
}

// StatusMessages returns the loading messages of flow in locale.
func StatusMessages(flow domain.Flow, locale string) []string {
	byLocale := statusMessages[flow]
	if msgs, ok := byLocale[i18n.Match(locale)]; ok {
		return msgs
	}
	return byLocale[i18n.English]
}

func statusMessage(flow domain.Flow, locale string, idx int) string {
	msgs := StatusMessages(flow, locale)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[idx%len(msgs)]
}

func statusInterval(flow domain.Flow) time.Duration {
	if flow == domain.FlowWardrobe {
		return WardrobeStatusInterval
	}
	return ConsultStatusInterval
}
