// Package prompt composes the instruction sent to the analysis model.
package prompt

import (
	"fmt"
	"strings"

	"linkshelf/internal/domain"
)

// MaxTitleLength is the title bound requested from the model.
const MaxTitleLength = 80

// Video is optional metadata folded into the context.
type Video struct {
	Title  string
	Author string
}

// Input gathers everything the instruction is built from.
type Input struct {
	URL             string
	PlatformContext string
	Video           *Video
	// Categories are the user's previously used labels, already deduplicated.
	Categories []string
}

// Build returns the instruction for in.
func Build(in Input) string {
	var b strings.Builder

	b.WriteString("Tu es un assistant de productivité expert. Analyse ce lien.\n\n")

	b.WriteString(in.PlatformContext)
	if in.Video != nil {
		fmt.Fprintf(&b, "\n\nMETADONNÉES YOUTUBE OFFICIELLES :\nTitre complet : %q\nChaîne : %q\nUtilise ce titre complet pour l'analyse.",
			in.Video.Title, in.Video.Author)
	}
	b.WriteString("\n\n")

	b.WriteString(categoryGuidance(in.Categories))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, `INSTRUCTIONS DE SORTIE :
1. Titre : Le titre réel et complet du contenu (max %d caractères).
2. Résumé : Une phrase claire et informative (pas de clickbait).
3. Catégorie : La catégorie choisie (existante ou nouvelle).
4. Tags : Exactement 3 tags précis en minuscules.

URL: %s`, MaxTitleLength, in.URL)

	return b.String()
}

func categoryGuidance(categories []string) string {
	if len(categories) == 0 {
		return "Aucune catégorie existante. Propose la catégorie la plus pertinente."
	}
	return fmt.Sprintf(`Voici les catégories déjà utilisées par l'utilisateur : %s.

TA MISSION POUR LA CATÉGORIE :
1. Regarde si le contenu correspond VRAIMENT à une catégorie existante. Si oui, choisis-la.
2. Si aucune catégorie existante ne correspond bien, propose une NOUVELLE catégorie pertinente et courte (ex: "Astrophysique", "Cuisine", "Marketing").
3. N'utilise %q qu'en dernier recours.`, strings.Join(categories, ", "), domain.Uncategorized)
}
