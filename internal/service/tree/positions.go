package tree

import (
	"cmp"
	"slices"

	"branchchat/internal/config"
	"branchchat/internal/domain"
	"branchchat/internal/domain/models"
)

// sortByPosition orders siblings newest-first (descending position).
func sortByPosition(entities []models.Entity) {
	slices.SortStableFunc(entities, func(a, b models.Entity) int {
		return cmp.Compare(b.Position, a.Position)
	})
}

// topPosition returns a position above every sibling.
// siblings must be sorted by sortByPosition.
func topPosition(siblings []models.Entity) float64 {
	if len(siblings) == 0 {
		return config.PositionGap
	}
	return siblings[0].Position + config.PositionGap
}

// positionAt returns the position that places an entity at index of
// siblings (sorted descending, without the entity itself). Indexes past
// either end clamp to the ends, which sit one gap beyond the outermost
// sibling. It returns domain.ErrPositionPrecision when the two neighbors
// are too close to fit a midpoint.
func positionAt(siblings []models.Entity, index int) (float64, error) {
	n := len(siblings)
	switch {
	case n == 0:
		return config.PositionGap, nil
	case index <= 0:
		return siblings[0].Position + config.PositionGap, nil
	case index >= n:
		return siblings[n-1].Position - config.PositionGap, nil
	}

	above, below := siblings[index-1].Position, siblings[index].Position
	if above-below < config.PositionEpsilon {
		return 0, domain.ErrPositionPrecision
	}
	mid := below + (above-below)/2
	if mid <= below || mid >= above {
		return 0, domain.ErrPositionPrecision
	}
	return mid, nil
}

func insertSorted(list []models.Entity, e models.Entity) []models.Entity {
	out := make([]models.Entity, 0, len(list)+1)
	for _, cur := range list {
		if cur.ID != e.ID {
			out = append(out, cur)
		}
	}
	out = append(out, e)
	sortByPosition(out)
	return out
}

func removeEntity(list []models.Entity, id string) []models.Entity {
	out := make([]models.Entity, 0, len(list))
	for _, cur := range list {
		if cur.ID != id {
			out = append(out, cur)
		}
	}
	return out
}

func indexOf(list []models.Entity, id string) int {
	return slices.IndexFunc(list, func(e models.Entity) bool { return e.ID == id })
}

// updateEntity applies fn to the entity with the given id, if present.
func updateEntity(list []models.Entity, id string, fn func(*models.Entity)) []models.Entity {
	i := indexOf(list, id)
	if i < 0 {
		return list
	}
	fn(&list[i])
	return list
}
