package checklist

// Section headings of the inspection protocol, in protocol order
const (
	SectionDocumentation    = "Teknisk dokumentation över brandskyddet"
	SectionBuildingPermit   = "Verksamhet enligt plan och bygglag"
	SectionOrganisation     = "Organisatoriskt brandskydd / Ansvar och organisation"
	SectionSelfInspection   = "Organisatoriskt brandskydd / Rutiner för egenkontroll"
	SectionTraining         = "Organisatoriskt brandskydd / Utbildning och övning"
	SectionFireCompartments = "Byggnadstekniskt brandskydd / Brandcellsindelning"
	SectionInstallations    = "Byggnadstekniskt brandskydd / Brandtekniska installationer"
	SectionEvacuation       = "Byggnadstekniskt brandskydd / Utrymning"
	SectionFireLoad         = "Byggnadstekniskt brandskydd / Brandbelastning och ytskikt"
	SectionRescueService    = "Räddningstjänstens insatsmöjligheter"
)

var (
	yesNo        = []string{"Ja", "Nej"}
	yesNoPartial = []string{"Ja", "Nej", "Delvis"}
)

// items is the fixed brandskyddskontroll catalog. Order matters: the document renderer
// walks it to build sections.
var items = []Item{
	{ID: "1.1", Section: SectionDocumentation, Question: "Finns dokumentation där brandcellsgränser och dess brandtekniska klass framgår?", Options: yesNoPartial},
	{ID: "1.2", Section: SectionDocumentation, Question: "Finns dokumentation där utrymningsvägar framgår?", Options: yesNoPartial},
	{ID: "1.3", Section: SectionDocumentation, Question: "Finns det dokumentation där brandtekniska installationer (ex. sprinkler) framgår?", Options: yesNoPartial},
	{ID: "1.4", Section: SectionDocumentation, Question: "Finns det dokumentation där brandskyddsutrustning (ex. handbrandsläckare) framgår?", Options: yesNoPartial},
	{ID: "2.1", Section: SectionBuildingPermit, Question: "Avviker byggnaden eller verksamheten från gällande lov enligt Plan- och bygglag (2010:900)?", Options: []string{"Ja", "Nej", "Ej kontrollerat / underlag saknas"}},
	{ID: "3.1.1", Section: SectionOrganisation, Question: "Finns det en brandskyddsorganisation för aktuell verksamhet?", Options: yesNo},
	{ID: "3.1.2", Section: SectionOrganisation, Question: "Finns det någon brandskyddsansvarig?", Options: yesNo},
	{ID: "3.1.3", Section: SectionOrganisation, Question: "Har brandskyddsansvarig rätt förutsättningar för sin uppgift?", Options: yesNo},
	{ID: "3.1.4", Section: SectionOrganisation, Question: "Är ansvarsfördelningen för brandskyddet klargjord?", Options: yesNo},
	{ID: "3.1.5", Section: SectionOrganisation, Question: "Finns det rutiner för agerande i händelse av brand?", Options: yesNo},
	{ID: "3.2.1", Section: SectionSelfInspection, Question: "Genomförs det egenkontroller av brandskyddet?", Options: yesNo},
	{ID: "3.2.2", Section: SectionSelfInspection, Question: "Är det klargjort vem/vilka som kontrollerar brandskyddet?", Options: yesNo},
	{ID: "3.2.3", Section: SectionSelfInspection, Question: "Sker kontroller som utförs av verksamheten kontinuerligt?", Options: yesNoPartial},
	{ID: "3.2.4", Section: SectionSelfInspection, Question: "Sker kontroller som utförs av fastighetsägaren eller externa företag kontinuerligt?", Options: yesNoPartial},
	{ID: "3.2.5", Section: SectionSelfInspection, Question: "Finns det system för uppföljning av uppmärksammade brister?", Options: yesNoPartial},
	{ID: "3.3.1", Section: SectionTraining, Question: "Är det klargjort vilken brandskyddsutbildning personalen har behov av?", Options: yesNo},
	{ID: "3.3.2", Section: SectionTraining, Question: "Finns det en dokumenterad utbildningsplan?", Options: yesNoPartial},
	{ID: "3.3.3", Section: SectionTraining, Question: "Har personalen kunskap i hur utrymningslarmet fungerar?", Options: []string{"Ja", "Nej", "Delvis", "Utrymningslarm finns ej"}},
	{ID: "3.3.4", Section: SectionTraining, Question: "Har personalen kunskap i hur brandlarmet fungerar?", Options: []string{"Ja", "Nej", "Delvis", "Brandlarm finns ej"}},
	{ID: "3.3.5", Section: SectionTraining, Question: "Får vikarier/nyanställda utbildning i brandskydd?", Options: yesNoPartial},
	{ID: "3.3.6", Section: SectionTraining, Question: "Genomförs det brand- och utrymningsövningar?", Options: yesNoPartial},
	{ID: "4.1.1", Section: SectionFireCompartments, Question: "Är brandcellsindelningen dokumenterad och tydlig?", Options: yesNoPartial},
	{ID: "4.2.1", Section: SectionInstallations, Question: "Installation för tidig upptäckt av brand och varning", Options: []string{"Brandvarnare", "Automatiskt brandlarm", "Utrymningslarm", "Finns ej"}},
	{ID: "4.2.2", Section: SectionInstallations, Question: "Släckutrustning", Options: []string{"Handbrandsläckare", "Inomhusbrandpost", "Sprinkler", "Finns ej"}},
	{ID: "4.2.3", Section: SectionInstallations, Question: "Brandgasventilering", Options: []string{"Öppningsbart fönster", "Röklucka", "Fläkt i drift", "Finns ej"}},
	{ID: "4.3.1", Section: SectionEvacuation, Question: "Finns det nödbelysning?", Options: yesNoPartial},
	{ID: "4.3.2", Section: SectionEvacuation, Question: "Finns det utrymningsskyltar?", Options: yesNoPartial},
	{ID: "4.4.1", Section: SectionFireLoad, Question: "Är brandbelastningen inom verksamheten normal?", Options: yesNo},
	{ID: "4.4.2", Section: SectionFireLoad, Question: "Är ytskikten anpassade till lokalernas användning?", Options: yesNo},
	{ID: "5.1", Section: SectionRescueService, Question: "Finns det vägar/räddningsvägar i tillräcklig omfattning?", Options: yesNo},
	{ID: "5.2", Section: SectionRescueService, Question: "Finns det uppställningsplatser för stegutrustning i tillräcklig omfattning?", Options: []string{"Ja", "Nej", "Ej aktuellt"}},
	{ID: "5.3", Section: SectionRescueService, Question: "Finns det möjlighet till brandgasventilering i tillräcklig omfattning?", Options: yesNo},
	{ID: "5.4", Section: SectionRescueService, Question: "Finns det stigarledning?", Options: []string{"Ja", "Nej", "Ej krav"}},
	{ID: "5.5", Section: SectionRescueService, Question: "Finns det räddningshiss?", Options: []string{"Ja", "Nej", "Ej krav"}},
	{ID: "5.6", Section: SectionRescueService, Question: "Övrigt", Options: nil},
}
