// Package platform classifies URLs by the site they come from.
package platform

import "strings"

// Platform is a closed classification of a URL's originating site.
type Platform string

const (
	VideoHosting        Platform = "video-hosting"
	Microblog           Platform = "microblog"
	ShortVideo          Platform = "short-video"
	ProfessionalNetwork Platform = "professional-network"
	DiscussionForum     Platform = "discussion-forum"
	CodeHosting         Platform = "code-hosting"
	Generic             Platform = "generic"
)

type rule struct {
	platform  Platform
	fragments []string
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{VideoHosting, []string{"youtube.com", "youtu.be"}},
	{Microblog, []string{"twitter.com", "x.com"}},
	{ShortVideo, []string{"instagram.com", "tiktok.com"}},
	{ProfessionalNetwork, []string{"linkedin.com"}},
	{DiscussionForum, []string{"reddit.com"}},
	{CodeHosting, []string{"github.com"}},
}

// Detect returns the platform for rawURL. It never fails; anything
// unrecognized is Generic.
func Detect(rawURL string) Platform {
	lower := strings.ToLower(rawURL)
	for _, r := range rules {
		for _, f := range r.fragments {
			if strings.Contains(lower, f) {
				return r.platform
			}
		}
	}
	return Generic
}

// Context returns the prompt sentence describing the kind of content behind p.
func (p Platform) Context() string {
	switch p {
	case VideoHosting:
		return "C'est une vidéo YouTube. IMPORTANT: Utilise les métadonnées fournies (Titre/Auteur) pour comprendre le sujet. " +
			"Le titre original est souvent la meilleure source. Résume le contenu éducatif ou informatif."
	case Microblog:
		return "C'est un post Twitter/X. Analyse le contenu du tweet."
	case ShortVideo:
		return "C'est une vidéo courte (Instagram/TikTok). Analyse le sujet et la description."
	case ProfessionalNetwork:
		return "C'est un post LinkedIn. Contexte professionnel."
	case DiscussionForum:
		return "C'est un post Reddit."
	case CodeHosting:
		return "C'est un projet GitHub."
	default:
		return "Analyse le contenu principal de cette page web."
	}
}
