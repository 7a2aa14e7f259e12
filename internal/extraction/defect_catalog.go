package extraction

import "github.com/rsg-tillsyn/tillsyn-assist/internal/templating"

// Boilerplate categories
const (
	CategoryGuidingMarkings = "vagledande_markeringar"
	CategoryFireDoor        = "dorr_brandcellsgrans"
)

// DefectCatalog holds the boilerplate texts the model may choose from.
// A '*' marks a span the model fills in from the conversation.
var DefectCatalog = []templating.DefectTemplate{
	{
		Key:   CategoryGuidingMarkings,
		Title: "Vägledande markeringar",
		Brist: []templating.TemplateVariant{
			{Label: "A", Text: "Vägledande markeringar saknas *beskriv var de saknas*.\n\n" +
				"Utrymning från utrymmen där personer inte är kända i lokalerna tar längre tid om vägledande markeringar saknas."},
			{Label: "B", Text: "Vägledande markeringar *beskriv var de saknades* var släckta vid tillsynsbesöket.\n\n" +
				"Utrymning från utrymmen där personer inte är kända i lokalerna tar längre tid om vägledande markeringar saknas."},
		},
		Atgard: []templating.TemplateVariant{
			{Label: "A", Text: "Vägledande markeringar som visar vägen ut ska monteras ovanför dörrar. " +
				"Markeringarna ska utformas belysta/genomlysta. " +
				"Skyltar ska vara utformade i enlighet med SS-EN 1838:2013*Lägg till och AFS 2023:12 om det är en arbetsplats*."},
			{Label: "B", Text: "De vägledande markeringarna som vid tillsynsbesöket var släckta ska åtgärdas så att de lyser."},
		},
		Motivering: []templating.TemplateVariant{
			{Text: "Syftet med åtgärden är att underlätta vid utrymning. " +
				"Personerna som utrymmer ska i dåliga förhållanden (mörker eller tät brandrök) kunna lokalisera var närmsta utgång finns. " +
				"Vägledande markeringar gör det möjligt att genomföra detta skyndsamt. " +
				"*Beskriv varför utrymmet kan vara svårorienterat (tex långa gångavstånd, dåligt med dagljusinsläpp, " +
				"folk är inte bekanta i lokalerna, många vägval, möblering som gör det svårt att gå på måfå för att hitta ut osv…)*"},
		},
	},
	{
		Key:   CategoryFireDoor,
		Title: "Dörr i brandcellsgräns",
		Brist: []templating.TemplateVariant{
			{Text: "Dörrparti i brandcellsgräns *beskriv var i lokalen* uppfyller inte sin brandtekniska funktion. " +
				"Vid tillsynen noterades att partiet *beskriv var på dörren* inte var tätt/inte innehar korrekt brandklassning " +
				"p.g.a. *ange vad som gör att det är en brist, exempelvis glipa eller hål*. " +
				"Det är placerat i en brandcellsgräns och kan i sin nuvarande utformning inte tillräckligt väl förhindra " +
				"spridning av brand och rök till angränsande utrymme."},
		},
		Atgard: []templating.TemplateVariant{
			{Text: "Dörren ska åtgärdas så att erforderlig brandteknisk klass uppnås. Detta kan utföras på två olika sätt:\n\n" +
				"a) Åtgärder vidtas så att befintligt dörrparti lägst motsvarar brandteknisk klass *skriv in klass eller orden FYLL I*. " +
				"Att vidtagna åtgärder leder till att angiven brandteknisk funktion har uppnåtts ska verifieras av sakkunnig.\n\n" +
				"b) Dörrpartiet ersätts med nytt i lägst brandteknisk klass *skriv in klass eller orden FYLL I*."},
		},
		Motivering: []templating.TemplateVariant{
			{Text: "Det brandskydd som finns installerat i en byggnad måste underhållas för att det ska uppnå sin tänkta effekt. " +
				"Med angiven åtgärd ges fastighetsägaren möjlighet att välja vilket alternativ som passar bäst i aktuell verksamhet."},
		},
	},
}

func knownCategory(key string) bool {
	for _, t := range DefectCatalog {
		if t.Key == key {
			return true
		}
	}
	return false
}
