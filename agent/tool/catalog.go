package tool

import (
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Chative-Reservation-Concierge/agent/contract"
)

// Infos returns the tool schemas offered to the decision model, one per
// capability.
func Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: string(contractx.CapSearchWeb),
			Desc: "Search the web for restaurant news, menus, reviews or opening hours.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgQuery: {Type: schema.String, Desc: "Search query", Required: true},
			}),
		},
		{
			Name: string(contractx.CapSearchPlaces),
			Desc: "Find restaurants in a location. Returns candidates with rating, phone and whether online booking exists.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgQuery:            {Type: schema.String, Desc: "Cuisine or kind of place, e.g. pizzeria"},
				contractx.ArgLocation:         {Type: schema.String, Desc: "Town, neighbourhood or address", Required: true},
				contractx.ArgRadiusMeters:     {Type: schema.Integer, Desc: "Search radius in meters"},
				contractx.ArgPriceLevel:       {Type: schema.Integer, Desc: "Maximum price level from 1 to 4"},
				contractx.ArgExtras:           {Type: schema.Array, ElemInfo: &schema.ParameterInfo{Type: schema.String}, Desc: "Wishes such as terraza or vegano"},
				contractx.ArgMaxTravelMinutes: {Type: schema.Integer, Desc: "Maximum travel time from the location"},
				contractx.ArgTravelMode:       {Type: schema.String, Desc: "Travel mode", Enum: []string{"driving", "walking", "transit", "bicycling"}},
			}),
		},
		{
			Name: string(contractx.CapCheckAvailability),
			Desc: "Check table availability for known candidates at a date, time and party size.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgPlaceIDs:  {Type: schema.Array, ElemInfo: &schema.ParameterInfo{Type: schema.String}, Desc: "Candidate place ids; defaults to the best rated candidates"},
				contractx.ArgDate:      {Type: schema.String, Desc: "Date as the user said it or YYYY-MM-DD", Required: true},
				contractx.ArgTime:      {Type: schema.String, Desc: "Time, HH:MM", Required: true},
				contractx.ArgNumPeople: {Type: schema.Integer, Desc: "Party size", Required: true},
			}),
		},
		{
			Name: string(contractx.CapMakeBooking),
			Desc: "Book a table online at the restaurant the user selected.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgPlaceID:   {Type: schema.String, Desc: "Selected candidate place id"},
				contractx.ArgPlaceName: {Type: schema.String, Desc: "Selected restaurant name", Required: true},
				contractx.ArgDate:      {Type: schema.String, Desc: "Date", Required: true},
				contractx.ArgTime:      {Type: schema.String, Desc: "Time, HH:MM", Required: true},
				contractx.ArgNumPeople: {Type: schema.Integer, Desc: "Party size", Required: true},
			}),
		},
		{
			Name: string(contractx.CapPhoneCall),
			Desc: "Call the restaurant to book by phone. Blocks until the call ends.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgPlaceID:     {Type: schema.String, Desc: "Selected candidate place id"},
				contractx.ArgPlaceName:   {Type: schema.String, Desc: "Selected restaurant name"},
				contractx.ArgPhoneNumber: {Type: schema.String, Desc: "Number to call; defaults to the candidate's phone"},
				contractx.ArgDate:        {Type: schema.String, Desc: "Date", Required: true},
				contractx.ArgTime:        {Type: schema.String, Desc: "Time, HH:MM", Required: true},
				contractx.ArgNumPeople:   {Type: schema.Integer, Desc: "Party size", Required: true},
				contractx.ArgMission:     {Type: schema.String, Desc: "What the caller must achieve"},
				contractx.ArgContext:     {Type: schema.String, Desc: "Background for the caller"},
			}),
		},
		{
			Name: string(contractx.CapCreateCalendarEvent),
			Desc: "Add the confirmed reservation to the user's calendar. Only after the user accepts.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgSummary:     {Type: schema.String, Desc: "Event title"},
				contractx.ArgDescription: {Type: schema.String, Desc: "Event notes"},
			}),
		},
		{
			Name: string(contractx.CapSearchEvents),
			Desc: "Search the user's calendar.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgQuery: {Type: schema.String, Desc: "Text to match in title or notes"},
				contractx.ArgFrom:  {Type: schema.String, Desc: "Start of range, RFC3339"},
				contractx.ArgTo:    {Type: schema.String, Desc: "End of range, RFC3339"},
			}),
		},
		{
			Name: string(contractx.CapUpdateCalendarEvent),
			Desc: "Change an existing calendar event.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgEventID:     {Type: schema.String, Desc: "Event id", Required: true},
				contractx.ArgSummary:     {Type: schema.String, Desc: "New title"},
				contractx.ArgStart:       {Type: schema.String, Desc: "New start, RFC3339"},
				contractx.ArgEnd:         {Type: schema.String, Desc: "New end, RFC3339"},
				contractx.ArgLocation:    {Type: schema.String, Desc: "New location"},
				contractx.ArgDescription: {Type: schema.String, Desc: "New notes"},
			}),
		},
		{
			Name: string(contractx.CapDeleteCalendarEvent),
			Desc: "Delete a calendar event.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				contractx.ArgEventID: {Type: schema.String, Desc: "Event id", Required: true},
			}),
		},
	}
}
