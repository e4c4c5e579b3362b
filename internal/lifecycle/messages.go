package lifecycle

import (
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/messaging/templates"
)

const genericFollowUp = "Hi {{.Name}}, thanks for your interest. Let us know if there is anything we can help with."

// followUpTemplates is keyed by status, then channel. Every status has an
// email entry; other channels fall back to it.
var followUpTemplates = map[leads.Status]map[leads.Channel]string{
	leads.StatusNew: {
		leads.ChannelEmail:    "Hi {{.Name}}, thanks for reaching out! We'd love to learn more about what you need. When is a good time to talk?",
		leads.ChannelSMS:      "Hi {{.Name}}, thanks for your interest! Reply here or let us know a good time for a quick call.",
		leads.ChannelWhatsApp: "Hi {{.Name}} 👋 thanks for getting in touch! When would be a good time to chat?",
	},
	leads.StatusContacted: {
		leads.ChannelEmail:    "Hi {{.Name}}, just following up on our last message. Do you have any questions we can answer?",
		leads.ChannelSMS:      "Hi {{.Name}}, following up on our last note. Any questions? Just reply here.",
		leads.ChannelVoice:    "Hi {{.Name}}, this is a quick follow-up call about your recent inquiry. Please call us back when you have a moment.",
		leads.ChannelWhatsApp: "Hi {{.Name}}, checking in on our last message. Happy to answer any questions!",
	},
	leads.StatusProspect: {
		leads.ChannelEmail:    "Hi {{.Name}}, great talking with you! Here is a summary of the options we discussed. Ready to take the next step?",
		leads.ChannelSMS:      "Hi {{.Name}}, great chatting! Ready to move forward? Reply YES and we'll get things started.",
		leads.ChannelWhatsApp: "Hi {{.Name}}, thanks for the great conversation! Let us know when you're ready to move forward.",
	},
	leads.StatusHot: {
		leads.ChannelEmail: "Hi {{.Name}}, we're ready when you are! The application only takes a few minutes to complete.",
		leads.ChannelSMS:   "Hi {{.Name}}, you're almost there! Complete your application today and we'll review it right away.",
		leads.ChannelVoice: "Hi {{.Name}}, calling to help you finish your application. It only takes a few minutes.",
	},
	leads.StatusApplication: {
		leads.ChannelEmail:    "Hi {{.Name}}, thanks for your application! To finish up we still need your remaining documents. You can upload them any time.",
		leads.ChannelSMS:      "Hi {{.Name}}, we received your application! Please upload your remaining documents so we can complete your file.",
		leads.ChannelWhatsApp: "Hi {{.Name}}, your application is in! Just a few documents left to upload and you're done.",
	},
}

var renderer = &templates.Renderer{}

// FollowUpMessage renders the follow-up text for a lead on a channel. A
// channel without its own template uses the status's email template; doc and
// dead leads get a generic message.
func FollowUpMessage(lead *leads.Lead, channel leads.Channel) string {
	tmpl := genericFollowUp
	if byChannel, ok := followUpTemplates[lead.Status]; ok {
		if t, ok := byChannel[channel]; ok {
			tmpl = t
		} else {
			tmpl = byChannel[leads.ChannelEmail]
		}
	}
	out, err := RenderForLead(string(lead.Status)+"/"+string(channel), tmpl, lead)
	if err != nil {
		// Built-in templates only reference Name.
		return tmpl
	}
	return out
}

// RenderForLead renders a caller-supplied template against lead fields.
func RenderForLead(name, tmpl string, lead *leads.Lead) (string, error) {
	return renderer.Render(name, tmpl, templates.LeadData{
		Name:   templates.Greeting(lead.Name),
		Email:  lead.Email,
		Phone:  lead.Phone,
		Status: string(lead.Status),
		Source: lead.Source,
	})
}
