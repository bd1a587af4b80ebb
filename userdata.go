package ember

// Userdata wraps an arbitrary host value inside the tagged-value
// world (spec.md §3 "Closure" sibling kinds; full userdata, as
// opposed to the light userdata carried inline in Value). It gets a
// metatable like a table, which is how host types expose methods and
// __gc finalizers to scripts.
type Userdata struct {
	header

	Data interface{}

	metatable *Table
	uservalue Value // one extra Value slot a host can attach, e.g. for an environment table
}

func (u *Userdata) hdr() *header     { return &u.header }
func (u *Userdata) objType() objType { return objUserdata }

func newUserdata(g *globalState, data interface{}) *Userdata {
	u := &Userdata{Data: data, uservalue: NilValue}
	u.header.typ = objUserdata
	if g != nil {
		u.header.color = g.gc.currentWhite
		g.gc.link(u)
		g.accountBytes(userdataOverhead)
	}
	return u
}
