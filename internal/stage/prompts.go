package stage

import (
	"fmt"
	"strings"

	"biosecure/internal/casefile"
	"biosecure/internal/extract"
)

const identifyPrompt = `Identify the insect in this image.
Begin your answer with a sentence of the form "The insect in the image is a <common name> (<scientific name>)."
Then give the key features that support the identification.`

func mpiSummaryPrompt(species string) string {
	return fmt.Sprintf("Summarize the MPI page for '%s' in one paragraph. The MPI website is mpi.govt.nz.", species)
}

// speciesQuery is the name used for lookups: the common name when the
// identification produced one, the full answer otherwise.
func speciesQuery(id *casefile.Identification) string {
	if id.CommonName != "" && id.CommonName != extract.UnknownCommonName {
		return id.CommonName
	}
	return id.TopGuess
}

const noForecastMarker = "NO FORECAST AVAILABLE: the weather query failed. Base the assessment on the threat profile and location only, and say that no forecast was available."

func riskPrompt(cf casefile.CaseFile, forecast string) string {
	var b strings.Builder
	b.WriteString("You are assessing the real-world risk of an insect pest spreading from where it was found.\n\n")
	fmt.Fprintf(&b, "Location: %s (lat %v, lon %v)\n", orDash(cf.Location.Description), cf.Location.Lat, cf.Location.Lon)
	if cf.Identification != nil {
		fmt.Fprintf(&b, "Species: %s\n", cf.Identification.TopGuess)
	}
	if tp := cf.ThreatProfile; tp != nil {
		fmt.Fprintf(&b, "NZ status: %s\nThreat level: %s\n", tp.StatusNZ, tp.ThreatLevel)
		if len(tp.Hosts) > 0 {
			fmt.Fprintf(&b, "Known hosts: %s\n", strings.Join(tp.Hosts, ", "))
		}
	}
	b.WriteString("\nWeather forecast for the next 7 days:\n")
	b.WriteString(forecast)
	b.WriteString(`

Analyze the forecast to assess the risk of spread. Consider the wind speed and direction to determine if the insect could be carried to nearby sensitive areas such as vineyards, orchards, kiwifruit and maize crops, or glasshouses. Name any such areas.
Finish with one recommended alert level: low, moderate, high or critical.`)
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
