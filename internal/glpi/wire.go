package glpi

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexInt accepts numbers, numeric strings and anything else as zero. Expanded
// dropdowns turn id fields into names.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*f = 0
		return nil
	}
	if i, err := n.Int64(); err == nil {
		*f = flexInt(i)
		return nil
	}
	if fl, err := n.Float64(); err == nil {
		*f = flexInt(int(fl))
	}
	return nil
}

// flexString accepts strings and renders numbers as text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}

type ticketWire struct {
	ID                 flexInt    `json:"id"`
	Name               flexString `json:"name"`
	Content            flexString `json:"content"`
	Status             flexInt    `json:"status"`
	Priority           flexInt    `json:"priority"`
	Category           flexString `json:"itilcategories_id"`
	UsersIDRecipient   flexInt    `json:"users_id_recipient"`
	UsersIDLastUpdater flexInt    `json:"users_id_lastupdater"`
	Date               flexString `json:"date"`
	DateCreation       flexString `json:"date_creation"`
	DateMod            flexString `json:"date_mod"`
}

type followupWire struct {
	ID        flexInt    `json:"id"`
	ItemsID   flexInt    `json:"items_id"`
	UsersID   flexInt    `json:"users_id"`
	Content   flexString `json:"content"`
	IsPrivate flexInt    `json:"is_private"`
	Date      flexString `json:"date"`
	DateCreat flexString `json:"date_creation"`
}

type solutionWire struct {
	ID           flexInt    `json:"id"`
	Itemtype     flexString `json:"itemtype"`
	ItemsID      flexInt    `json:"items_id"`
	UsersID      flexInt    `json:"users_id"`
	Content      flexString `json:"content"`
	Status       flexInt    `json:"status"`
	Date         flexString `json:"date"`
	DateCreation flexString `json:"date_creation"`
}

type documentItemWire struct {
	ID               flexInt    `json:"id"`
	DocumentsID      flexInt    `json:"documents_id"`
	ItemType         flexString `json:"itemtype"`
	ItemsID          flexInt    `json:"items_id"`
	UsersID          flexInt    `json:"users_id"`
	TimelinePosition flexInt    `json:"timeline_position"`
	DateCreation     flexString `json:"date_creation"`
}

type documentWire struct {
	ID           flexInt    `json:"id"`
	Name         flexString `json:"name"`
	Filename     flexString `json:"filename"`
	Mime         flexString `json:"mime"`
	UsersID      flexInt    `json:"users_id"`
	DateCreation flexString `json:"date_creation"`
}

type actorLinkWire struct {
	UsersID flexInt `json:"users_id"`
	Type    flexInt `json:"type"`
}

type groupLinkWire struct {
	GroupsID flexInt `json:"groups_id"`
	Type     flexInt `json:"type"`
}

type groupUserWire struct {
	UsersID flexInt `json:"users_id"`
}

type userWire struct {
	ID        flexInt    `json:"id"`
	Name      flexString `json:"name"`
	FirstName flexString `json:"firstname"`
	RealName  flexString `json:"realname"`
	Email     flexString `json:"email"`
}

type userEmailWire struct {
	Email     flexString `json:"email"`
	IsDefault flexInt    `json:"is_default"`
}

type searchResultWire struct {
	TotalCount flexInt                      `json:"totalcount"`
	Data       []map[string]json.RawMessage `json:"data"`
}
