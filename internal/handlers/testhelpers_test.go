package handlers

import "github.com/frankmark94/channel-play-pen/internal/models"

func credentialFor(apiURL string) models.Credential {
	return models.Credential{
		SigningSecret: testSecret,
		ChannelID:     "chan-1",
		APIURL:        apiURL,
	}
}
